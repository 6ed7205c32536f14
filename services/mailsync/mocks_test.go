package mailsync

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/models"
)

type mockGmailClient struct {
	mock.Mock
}

func (m *mockGmailClient) ListHistory(ctx context.Context, mailbox *models.Mailbox, startHistoryID uint64) (*dto.HistoryPage, error) {
	args := m.Called(ctx, mailbox, startHistoryID)
	var page *dto.HistoryPage
	if v := args.Get(0); v != nil {
		page = v.(*dto.HistoryPage)
	}
	return page, args.Error(1)
}

func (m *mockGmailClient) GetMessage(ctx context.Context, mailbox *models.Mailbox, messageID string) (*dto.MessageDetail, error) {
	args := m.Called(ctx, mailbox, messageID)
	var detail *dto.MessageDetail
	if v := args.Get(0); v != nil {
		detail = v.(*dto.MessageDetail)
	}
	return detail, args.Error(1)
}

func (m *mockGmailClient) Watch(ctx context.Context, mailbox *models.Mailbox, topic string) (*dto.WatchResult, error) {
	args := m.Called(ctx, mailbox, topic)
	var result *dto.WatchResult
	if v := args.Get(0); v != nil {
		result = v.(*dto.WatchResult)
	}
	return result, args.Error(1)
}

type mockPushGateway struct {
	mock.Mock
	mu       sync.Mutex
	payloads []dto.NotificationPayload
}

func (m *mockPushGateway) SendMulticast(ctx context.Context, payload dto.NotificationPayload, tokens []string) (*dto.MulticastResult, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()

	args := m.Called(ctx, payload, tokens)
	var result *dto.MulticastResult
	if v := args.Get(0); v != nil {
		result = v.(*dto.MulticastResult)
	}
	return result, args.Error(1)
}

func (m *mockPushGateway) sent() []dto.NotificationPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dto.NotificationPayload{}, m.payloads...)
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

type passthroughLocker struct{}

func (passthroughLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughLocker) Mode() string {
	return "test"
}
