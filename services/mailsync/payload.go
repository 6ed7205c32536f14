package mailsync

import (
	"strconv"
	"strings"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
)

const (
	DataKeyID           = "id"
	DataKeyThreadID     = "threadId"
	DataKeyType         = "type"
	DataKeyVerification = "verification"
	DataKeyLabel        = "label"
)

func BuildPayload(event dto.EnrichedEvent) dto.NotificationPayload {
	data := map[string]string{
		DataKeyID:       event.MessageID,
		DataKeyThreadID: event.ThreadID,
		DataKeyType:     event.Kind.String(),
	}

	switch event.Kind {
	case enum.ChangeAdded:
		data[DataKeyVerification] = strconv.FormatBool(event.Verified)
	case enum.ChangeLabelAdded, enum.ChangeLabelRemoved:
		data[DataKeyLabel] = strings.Join(event.LabelIDs, ",")
	}

	return dto.NotificationPayload{
		Title: event.Title,
		Body:  event.Body,
		Data:  data,
	}
}
