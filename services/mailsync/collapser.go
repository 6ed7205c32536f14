package mailsync

import (
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
)

// CollapseForwarded turns the added/deleted/added triple Gmail emits when a
// message is forwarded or moved into the final added event. Only a batch of
// exactly three events with exactly that shape is touched.
func CollapseForwarded(events []dto.ChangeEvent) []dto.ChangeEvent {
	if len(events) != 3 {
		return events
	}
	if events[0].Kind == enum.ChangeAdded &&
		events[1].Kind == enum.ChangeDeleted &&
		events[2].Kind == enum.ChangeAdded {
		return []dto.ChangeEvent{events[2]}
	}
	return events
}
