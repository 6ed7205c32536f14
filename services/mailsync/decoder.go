package mailsync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/utils"
)

// MaxDeliveryAttempts is the last push delivery attempt that is still processed.
const MaxDeliveryAttempts = 2

type notificationData struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// DecodeEnvelope decodes the base64 JSON body of a push delivery.
// historyId may be a JSON string or number.
func DecodeEnvelope(envelope dto.PubSubEnvelope) (dto.GmailNotification, error) {
	var notification dto.GmailNotification

	if strings.TrimSpace(envelope.Message.Data) == "" {
		return notification, malformed("message.data is empty")
	}

	raw, err := decodeBase64(envelope.Message.Data)
	if err != nil {
		return notification, malformed("message.data is not base64: %v", err)
	}

	var data notificationData
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return notification, malformed("message.data is not json: %v", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return notification, malformed("message.data has content after the json object")
	}

	email := strings.TrimSpace(data.EmailAddress)
	if email == "" {
		return notification, malformed("emailAddress is missing")
	}
	if data.HistoryID == "" {
		return notification, malformed("historyId is missing")
	}

	historyID, err := parseHistoryID(data.HistoryID.String())
	if err != nil {
		return notification, err
	}

	notification.EmailAddress = email
	notification.HistoryID = historyID
	notification.Attempt = utils.GetOrDefault(envelope.DeliveryAttempt, 1)
	return notification, nil
}

// ShouldProcess is the delivery attempt guard.
func ShouldProcess(attempt int) bool {
	return attempt <= MaxDeliveryAttempts
}

func parseHistoryID(value string) (uint64, error) {
	historyID, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return 0, malformed("historyId %q is not an integer", value)
	}
	if historyID.Sign() < 0 {
		return 0, malformed("historyId %q is negative", value)
	}
	// cursors are stored in a signed bigint column
	if historyID.Cmp(new(big.Int).SetInt64(math.MaxInt64)) > 0 {
		return 0, malformed("historyId %q is out of range", value)
	}
	return historyID.Uint64(), nil
}

// Pub/Sub sends standard base64, padding is not always present.
func decodeBase64(value string) ([]byte, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "=")
	decoded, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(trimmed)
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", mperrors.ErrMalformedEnvelope, fmt.Sprintf(format, args...))
}
