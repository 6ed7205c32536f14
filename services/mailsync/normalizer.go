package mailsync

import (
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
)

// Normalize flattens history records into one ordered event list. Records keep
// their order; inside a record the order is added, deleted, label added,
// label removed, regardless of when each change really happened.
func Normalize(records []dto.HistoryRecord) []dto.ChangeEvent {
	events := make([]dto.ChangeEvent, 0)

	appendAll := func(kind enum.ChangeKind, messages []dto.HistoryMessage) {
		for _, message := range messages {
			event := dto.ChangeEvent{
				MessageID: message.MessageID,
				ThreadID:  message.ThreadID,
				Kind:      kind,
				Position:  len(events),
			}
			if kind.IsLabelChange() {
				event.LabelIDs = append([]string{}, message.LabelIDs...)
			}
			events = append(events, event)
		}
	}

	for _, record := range records {
		appendAll(enum.ChangeAdded, record.MessagesAdded)
		appendAll(enum.ChangeDeleted, record.MessagesDeleted)
		appendAll(enum.ChangeLabelAdded, record.LabelsAdded)
		appendAll(enum.ChangeLabelRemoved, record.LabelsRemoved)
	}

	return events
}
