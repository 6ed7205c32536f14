package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
)

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) HandleEnvelope(ctx context.Context, envelope dto.PubSubEnvelope) (*dto.SyncSummary, error) {
	args := m.Called(ctx, envelope)
	summary, _ := args.Get(0).(*dto.SyncSummary)
	return summary, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishGmailNotificationReceived(ctx context.Context, message dto.GmailNotificationReceived) error {
	return m.Called(ctx, message).Error(0)
}

func (m *mockPublisher) PublishMailboxSynced(ctx context.Context, message dto.MailboxSynced) error {
	return m.Called(ctx, message).Error(0)
}

func (m *mockPublisher) Close() error {
	return nil
}

const pushBody = `{"message":{"data":"eyJlbWFpbEFkZHJlc3MiOiJhbGljZUBleGFtcGxlLmNvbSIsImhpc3RvcnlJZCI6IjE1MCJ9","messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`

func pushRouter(syncService *mockSyncService, publisher *mockPublisher, cfg PubSubConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/push", GmailPush(logger.NewNopLogger(), syncService, publisher, cfg))
	return r
}

func post(r http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGmailPush_Processed(t *testing.T) {
	syncService := new(mockSyncService)
	syncService.On("HandleEnvelope", mock.Anything, mock.MatchedBy(func(e dto.PubSubEnvelope) bool {
		return e.Message.MessageID == "m-1"
	})).Return(&dto.SyncSummary{RunID: "run-1", Events: 2, CursorAdvanced: true}, nil).Once()

	w := post(pushRouter(syncService, nil, PubSubConfig{}), "/push", pushBody)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, "run-1", body["summary"].(map[string]any)["runId"])
	syncService.AssertExpectations(t)
}

func TestGmailPush_Skipped(t *testing.T) {
	syncService := new(mockSyncService)
	syncService.On("HandleEnvelope", mock.Anything, mock.Anything).
		Return(&dto.SyncSummary{Skipped: true, SkipReason: dto.SkipReasonAttemptsExceeded}, nil).Once()

	w := post(pushRouter(syncService, nil, PubSubConfig{}), "/push", pushBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "skipped", decodeBody(t, w)["status"])
}

func TestGmailPush_DroppedErrorsAreAcked(t *testing.T) {
	for _, err := range []error{mperrors.ErrMalformedEnvelope, mperrors.ErrMailboxNotFound, mperrors.ErrCursorNotFound} {
		t.Run(err.Error(), func(t *testing.T) {
			syncService := new(mockSyncService)
			syncService.On("HandleEnvelope", mock.Anything, mock.Anything).
				Return(&dto.SyncSummary{}, errors.Wrap(err, "handle")).Once()

			w := post(pushRouter(syncService, nil, PubSubConfig{}), "/push", pushBody)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "dropped", decodeBody(t, w)["status"])
		})
	}
}

func TestGmailPush_RetryableErrorsAreNacked(t *testing.T) {
	for _, err := range []error{mperrors.ErrUpstreamFetch, mperrors.ErrMessageEnrichment, mperrors.ErrVerificationRecord} {
		t.Run(err.Error(), func(t *testing.T) {
			syncService := new(mockSyncService)
			syncService.On("HandleEnvelope", mock.Anything, mock.Anything).
				Return(&dto.SyncSummary{}, errors.Wrap(err, "handle")).Once()

			w := post(pushRouter(syncService, nil, PubSubConfig{}), "/push", pushBody)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
		})
	}
}

func TestGmailPush_UnparseableBodyIsAcked(t *testing.T) {
	syncService := new(mockSyncService)

	w := post(pushRouter(syncService, nil, PubSubConfig{}), "/push", `{"message":`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dropped", decodeBody(t, w)["status"])
	syncService.AssertNotCalled(t, "HandleEnvelope", mock.Anything, mock.Anything)
}

func TestGmailPush_VerificationToken(t *testing.T) {
	syncService := new(mockSyncService)
	syncService.On("HandleEnvelope", mock.Anything, mock.Anything).Return(&dto.SyncSummary{}, nil).Once()
	r := pushRouter(syncService, nil, PubSubConfig{VerificationToken: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, post(r, "/push", pushBody).Code)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/push?token=wrong", pushBody).Code)
	assert.Equal(t, http.StatusOK, post(r, "/push?token=s3cret", pushBody).Code)
	syncService.AssertNumberOfCalls(t, "HandleEnvelope", 1)
}

func TestGmailPush_Async(t *testing.T) {
	syncService := new(mockSyncService)
	publisher := new(mockPublisher)
	publisher.On("PublishGmailNotificationReceived", mock.Anything, mock.MatchedBy(func(m dto.GmailNotificationReceived) bool {
		return m.Envelope.Message.MessageID == "m-1" && !m.ReceivedAt.IsZero()
	})).Return(nil).Once()

	w := post(pushRouter(syncService, publisher, PubSubConfig{Async: true}), "/push", pushBody)

	assert.Equal(t, http.StatusAccepted, w.Code)
	publisher.AssertExpectations(t)
	syncService.AssertNotCalled(t, "HandleEnvelope", mock.Anything, mock.Anything)
}

func TestGmailPush_AsyncPublishFailure(t *testing.T) {
	publisher := new(mockPublisher)
	publisher.On("PublishGmailNotificationReceived", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	w := post(pushRouter(new(mockSyncService), publisher, PubSubConfig{Async: true}), "/push", pushBody)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/status", Status(StatusInfo{
		LockMode:      "local",
		EventsEnabled: true,
		CronJobs:      func() []string { return []string{"heartbeat", "watch_renewal"} },
	}))
	r.GET("/health", HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "local", body["lockMode"])
	assert.Equal(t, false, body["asyncIngestion"])
	assert.Equal(t, true, body["eventsEnabled"])
	assert.Equal(t, []any{"heartbeat", "watch_renewal"}, body["cronJobs"])

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
