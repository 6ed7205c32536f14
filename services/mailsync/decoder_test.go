package mailsync

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
)

func envelopeWithData(data string, attempt *int) dto.PubSubEnvelope {
	return dto.PubSubEnvelope{
		Message:         dto.PubSubMessage{Data: data, MessageID: "pubsub-1"},
		DeliveryAttempt: attempt,
	}
}

func encodeStd(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func intPtr(i int) *int {
	return &i
}

func TestDecodeEnvelope_StringHistoryID(t *testing.T) {
	env := envelopeWithData(encodeStd(`{"emailAddress":"alice@example.com","historyId":"9876543210"}`), intPtr(2))

	notification, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", notification.EmailAddress)
	assert.Equal(t, uint64(9876543210), notification.HistoryID)
	assert.Equal(t, 2, notification.Attempt)
}

func TestDecodeEnvelope_NumericHistoryIDAndDefaultAttempt(t *testing.T) {
	env := envelopeWithData(encodeStd(`{"emailAddress":"alice@example.com","historyId":12345}`), nil)

	notification, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), notification.HistoryID)
	assert.Equal(t, 1, notification.Attempt)
}

func TestDecodeEnvelope_UnpaddedAndURLSafe(t *testing.T) {
	payload := `{"emailAddress":"alice@example.com","historyId":"42"}`

	raw := base64.RawStdEncoding.EncodeToString([]byte(payload))
	notification, err := DecodeEnvelope(envelopeWithData(raw, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), notification.HistoryID)

	urlSafe := base64.URLEncoding.EncodeToString([]byte(`{"emailAddress":"a~~~@example.com","historyId":"7"}`))
	require.Contains(t, urlSafe, "-")
	notification, err = DecodeEnvelope(envelopeWithData(urlSafe, nil))
	require.NoError(t, err)
	assert.Equal(t, "a~~~@example.com", notification.EmailAddress)
	assert.Equal(t, uint64(7), notification.HistoryID)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty data":        "",
		"not base64":        "%%%not-base64%%%",
		"not json":          encodeStd("hello"),
		"missing email":     encodeStd(`{"historyId":"1"}`),
		"missing history":   encodeStd(`{"emailAddress":"alice@example.com"}`),
		"negative history":  encodeStd(`{"emailAddress":"alice@example.com","historyId":"-5"}`),
		"fractional":        encodeStd(`{"emailAddress":"alice@example.com","historyId":12.5}`),
		"out of range":      encodeStd(`{"emailAddress":"alice@example.com","historyId":"99999999999999999999999"}`),
		"history not a num": encodeStd(`{"emailAddress":"alice@example.com","historyId":"abc"}`),
		"trailing garbage":  encodeStd(`{"emailAddress":"alice@example.com","historyId":"1"}garbage`),
		"trailing object":   encodeStd(`{"emailAddress":"alice@example.com","historyId":"1"}{}`),
		"trailing brace":    encodeStd(`{"emailAddress":"alice@example.com","historyId":"1"}}`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(envelopeWithData(data, intPtr(1)))
			assert.ErrorIs(t, err, mperrors.ErrMalformedEnvelope)
			assert.True(t, IsDropped(err))
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestDecodeEnvelope_HistoryIDFitsSignedBigint(t *testing.T) {
	notification, err := DecodeEnvelope(envelopeWithData(encodeStd(`{"emailAddress":"alice@example.com","historyId":"9223372036854775807"}`), nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64), notification.HistoryID)

	_, err = DecodeEnvelope(envelopeWithData(encodeStd(`{"emailAddress":"alice@example.com","historyId":"9223372036854775808"}`), nil))
	assert.ErrorIs(t, err, mperrors.ErrMalformedEnvelope)
}

func TestShouldProcess(t *testing.T) {
	assert.True(t, ShouldProcess(1))
	assert.True(t, ShouldProcess(2))
	assert.False(t, ShouldProcess(3))
	assert.False(t, ShouldProcess(10))
}
