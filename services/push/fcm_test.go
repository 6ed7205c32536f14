package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	fcm "google.golang.org/api/fcm/v1"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/logger"
)

func testPayload() dto.NotificationPayload {
	return dto.NotificationPayload{
		Title: "noreply@example.com",
		Body:  "Your code",
		Data:  map[string]string{"id": "m1", "threadId": "t1", "type": "added", "verification": "true"},
	}
}

func TestSendMulticast_AllTokens(t *testing.T) {
	var mu sync.Mutex
	sent := map[string]*fcm.Message{}
	gateway := newGateway(&config.FirebaseConfig{MaxConcurrentSends: 2}, logger.NewNopLogger(), func(ctx context.Context, message *fcm.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent[message.Token] = message
		return nil
	})

	result, err := gateway.SendMulticast(context.Background(), testPayload(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	require.Len(t, sent, 3)
	assert.Equal(t, "noreply@example.com", sent["b"].Notification.Title)
	assert.Equal(t, "Your code", sent["b"].Notification.Body)
	assert.Equal(t, "true", sent["b"].Data["verification"])
}

func TestSendMulticast_PartialFailure(t *testing.T) {
	gateway := newGateway(&config.FirebaseConfig{MaxConcurrentSends: 4}, logger.NewNopLogger(), func(ctx context.Context, message *fcm.Message) error {
		if message.Token == "stale" {
			return errors.New("UNREGISTERED")
		}
		return nil
	})

	result, err := gateway.SendMulticast(context.Background(), testPayload(), []string{"ok", "stale"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, []dto.TokenFailure{{Token: "stale", Error: "UNREGISTERED"}}, result.Failures)
}

func TestSendMulticast_AllFailed(t *testing.T) {
	gateway := newGateway(&config.FirebaseConfig{}, logger.NewNopLogger(), func(ctx context.Context, message *fcm.Message) error {
		return errors.New("unavailable")
	})

	result, err := gateway.SendMulticast(context.Background(), testPayload(), []string{"a", "b"})

	require.Error(t, err)
	assert.Equal(t, 2, result.FailureCount)
}

func TestSendMulticast_NoTokens(t *testing.T) {
	gateway := newGateway(&config.FirebaseConfig{}, logger.NewNopLogger(), func(ctx context.Context, message *fcm.Message) error {
		t.Fatal("no send expected")
		return nil
	})

	result, err := gateway.SendMulticast(context.Background(), testPayload(), nil)

	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
}

func TestSendMulticast_BoundedConcurrency(t *testing.T) {
	var active, maxActive int32
	gateway := newGateway(&config.FirebaseConfig{MaxConcurrentSends: 2}, logger.NewNopLogger(), func(ctx context.Context, message *fcm.Message) error {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})

	result, err := gateway.SendMulticast(context.Background(), testPayload(), []string{"a", "b", "c", "d", "e", "f"})

	require.NoError(t, err)
	assert.Equal(t, 6, result.SuccessCount)
	assert.LessOrEqual(t, maxActive, int32(2))
}

func TestBuildMessage_CopiesData(t *testing.T) {
	payload := testPayload()
	message := buildMessage(payload, "tok")
	message.Data["id"] = "changed"
	assert.Equal(t, "m1", payload.Data["id"])
	assert.Equal(t, "tok", message.Token)
}
