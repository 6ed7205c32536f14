package mailsync

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/repository"
)

const startCursor = uint64(100)

type fixture struct {
	repos     *repository.Repositories
	gmail     *mockGmailClient
	push      *mockPushGateway
	publisher *mockPublisher
	service   *MailboxSyncService
	mailbox   *models.Mailbox
}

func newFixture(t *testing.T, tokens ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))

	repos := repository.InitRepositories(db)
	mailbox := &models.Mailbox{OwnerID: "owner-1", EmailAddress: "alice@example.com"}
	require.NoError(t, repos.MailboxRepository.SaveMailbox(ctx, mailbox))
	_, err = repos.MailboxCursorRepository.EnsureCursor(ctx, mailbox.ID, startCursor)
	require.NoError(t, err)
	for i, token := range tokens {
		require.NoError(t, repos.DeviceTokenRepository.Upsert(ctx, &models.DeviceToken{
			MailboxID: mailbox.ID,
			DeviceKey: fmt.Sprintf("device-%d", i),
			Token:     token,
		}))
	}

	f := &fixture{
		repos:     repos,
		gmail:     new(mockGmailClient),
		push:      new(mockPushGateway),
		publisher: new(mockPublisher),
		mailbox:   mailbox,
	}
	f.publisher.On("PublishMailboxSynced", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.service = NewMailboxSyncService(logger.NewNopLogger(), repos, f.gmail, f.push, passthroughLocker{}, f.publisher, Options{DispatchConcurrency: 2})
	return f
}

func (f *fixture) cursor(t *testing.T) uint64 {
	t.Helper()
	cursor, err := f.repos.MailboxCursorRepository.GetCursor(context.Background(), f.mailbox.ID)
	require.NoError(t, err)
	return cursor.HistoryID
}

func (f *fixture) records(t *testing.T) []*models.VerificationRecord {
	t.Helper()
	records, err := f.repos.VerificationRecordRepository.ListByMailbox(context.Background(), f.mailbox.ID)
	require.NoError(t, err)
	return records
}

func notificationEnvelope(email string, historyID uint64, attempt int) dto.PubSubEnvelope {
	data := fmt.Sprintf(`{"emailAddress":%q,"historyId":"%d"}`, email, historyID)
	return dto.PubSubEnvelope{
		Message:         dto.PubSubMessage{Data: encodeStd(data), MessageID: uuid.NewString()},
		DeliveryAttempt: intPtr(attempt),
	}
}

func historyWith(records ...dto.HistoryRecord) *dto.HistoryPage {
	return &dto.HistoryPage{Records: records}
}

func verificationMessage(id string) *dto.MessageDetail {
	return &dto.MessageDetail{
		ID:       id,
		ThreadID: "t-" + id,
		From:     `"Example" <noreply@example.com>`,
		Subject:  "Your sign in code",
		Payload: &dto.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*dto.MessagePart{
				textPart("Your code is 482913"),
				htmlPart(`<p>Your code is</p><p><b>482913</b></p>`),
			},
		},
	}
}

func plainMessage(id string) *dto.MessageDetail {
	return &dto.MessageDetail{
		ID:       id,
		ThreadID: "t-" + id,
		From:     "bob@example.com",
		Subject:  "Lunch?",
		Payload:  htmlPart("<p>See you at noon</p>"),
	}
}

func payloadFor(id string) interface{} {
	return mock.MatchedBy(func(p dto.NotificationPayload) bool { return p.Data[DataKeyID] == id })
}

func TestHandleEnvelope_AttemptsExceeded(t *testing.T) {
	f := newFixture(t, "token-1")

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 3))

	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, dto.SkipReasonAttemptsExceeded, summary.SkipReason)
	assert.Equal(t, startCursor, f.cursor(t))
	f.gmail.AssertNotCalled(t, "ListHistory", mock.Anything, mock.Anything, mock.Anything)
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_MalformedIsDropped(t *testing.T) {
	f := newFixture(t)
	env := dto.PubSubEnvelope{Message: dto.PubSubMessage{Data: encodeStd("not json")}}

	_, err := f.service.HandleEnvelope(context.Background(), env)

	require.Error(t, err)
	assert.True(t, IsDropped(err))
	f.gmail.AssertNotCalled(t, "ListHistory", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_UnknownMailbox(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("nobody@example.com", 150, 1))

	assert.ErrorIs(t, err, mperrors.ErrMailboxNotFound)
	assert.True(t, IsDropped(err))
}

func TestHandleEnvelope_MailboxAddressIsNormalized(t *testing.T) {
	f := newFixture(t)
	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(), nil).Once()

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("  Alice@Example.COM ", 150, 1))

	require.NoError(t, err)
	assert.Equal(t, f.mailbox.ID, summary.MailboxID)
}

func TestHandleEnvelope_VerificationAddedMessage(t *testing.T) {
	f := newFixture(t, "token-1", "token-2", "token-1")
	ctx := context.Background()

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID:            101,
		MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1", LabelIDs: []string{"INBOX"}}},
	}), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(verificationMessage("m1"), nil).Once()
	f.push.On("SendMulticast", mock.Anything, payloadFor("m1"), mock.MatchedBy(func(tokens []string) bool {
		return len(tokens) == 2 && tokens[0] != tokens[1]
	})).
		Return(&dto.MulticastResult{SuccessCount: 2}, nil).Once()

	summary, err := f.service.HandleEnvelope(ctx, notificationEnvelope("alice@example.com", 150, 1))

	require.NoError(t, err)
	assert.True(t, summary.CursorAdvanced)
	assert.Equal(t, startCursor, summary.FromHistoryID)
	assert.Equal(t, uint64(150), summary.ToHistoryID)
	assert.Equal(t, 1, summary.Events)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, 1, summary.VerificationRecords)
	assert.Equal(t, uint64(150), f.cursor(t))

	sent := f.push.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "noreply@example.com", sent[0].Title)
	assert.Equal(t, "Your sign in code", sent[0].Body)
	assert.Equal(t, "true", sent[0].Data[DataKeyVerification])
	assert.Equal(t, "t-m1", sent[0].Data[DataKeyThreadID])
	assert.Equal(t, "added", sent[0].Data[DataKeyType])

	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "m1", records[0].MessageID)
	assert.Equal(t, "t-m1", records[0].ThreadID)
	assert.Equal(t, []string{"482913"}, records[0].CodeList())

	f.gmail.AssertExpectations(t)
	f.push.AssertExpectations(t)
	f.publisher.AssertCalled(t, "PublishMailboxSynced", mock.Anything, mock.MatchedBy(func(m dto.MailboxSynced) bool {
		return m.MailboxID == f.mailbox.ID && m.ToHistoryID == 150 && m.VerificationRecords == 1
	}))
}

func TestHandleEnvelope_MixedBatch(t *testing.T) {
	f := newFixture(t, "token-1")

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(
		dto.HistoryRecord{
			ID:            101,
			LabelsAdded:   []dto.HistoryMessage{{MessageID: "m2", ThreadID: "t-m2", LabelIDs: []string{"INBOX", "IMPORTANT"}}},
			MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1"}},
		},
		dto.HistoryRecord{
			ID:              102,
			MessagesDeleted: []dto.HistoryMessage{{MessageID: "m3", ThreadID: "t-m3"}},
			LabelsRemoved:   []dto.HistoryMessage{{MessageID: "m4", ThreadID: "t-m4", LabelIDs: []string{"UNREAD"}}},
		},
	), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(plainMessage("m1"), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m2").Return(plainMessage("m2"), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m4").Return(plainMessage("m4"), nil).Once()
	f.push.On("SendMulticast", mock.Anything, mock.Anything, []string{"token-1"}).Return(&dto.MulticastResult{SuccessCount: 1}, nil)

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 200, 2))

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Events)
	assert.Equal(t, 4, summary.Notified)
	assert.Zero(t, summary.VerificationRecords)
	assert.Empty(t, f.records(t))
	f.gmail.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything, "m3")

	byID := map[string]dto.NotificationPayload{}
	for _, p := range f.push.sent() {
		byID[p.Data[DataKeyID]] = p
	}
	require.Len(t, byID, 4)
	assert.Equal(t, "false", byID["m1"].Data[DataKeyVerification])
	assert.Equal(t, "INBOX,IMPORTANT", byID["m2"].Data[DataKeyLabel])
	assert.Equal(t, DeletedSentinel, byID["m3"].Title)
	assert.Equal(t, "deleted", byID["m3"].Data[DataKeyType])
	assert.Equal(t, "UNREAD", byID["m4"].Data[DataKeyLabel])
	assert.Equal(t, "label_removed", byID["m4"].Data[DataKeyType])
}

func TestHandleEnvelope_ForwardedTripleNotifiesOnce(t *testing.T) {
	f := newFixture(t, "token-1")

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(
		dto.HistoryRecord{ID: 101, MessagesAdded: []dto.HistoryMessage{{MessageID: "draft", ThreadID: "t"}}},
		dto.HistoryRecord{ID: 102, MessagesDeleted: []dto.HistoryMessage{{MessageID: "draft", ThreadID: "t"}}},
		dto.HistoryRecord{ID: 103, MessagesAdded: []dto.HistoryMessage{{MessageID: "sent", ThreadID: "t"}}},
	), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "sent").Return(plainMessage("sent"), nil).Once()
	f.push.On("SendMulticast", mock.Anything, payloadFor("sent"), mock.Anything).Return(&dto.MulticastResult{SuccessCount: 1}, nil).Once()

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 103, 1))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Events)
	assert.Len(t, f.push.sent(), 1)
	f.gmail.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything, "draft")
}

func TestHandleEnvelope_EmptyHistoryLeavesCursor(t *testing.T) {
	f := newFixture(t, "token-1")
	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(), nil).Once()

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 180, 1))

	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, dto.SkipReasonEmptyHistory, summary.SkipReason)
	assert.False(t, summary.CursorAdvanced)
	assert.Equal(t, startCursor, f.cursor(t))
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishMailboxSynced", mock.Anything, mock.Anything)
}

func TestHandleEnvelope_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, "token-1")
	ctx := context.Background()
	env := notificationEnvelope("alice@example.com", 150, 1)

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID:            101,
		MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1"}},
	}), nil).Once()
	f.gmail.On("ListHistory", mock.Anything, mock.Anything, uint64(150)).Return(historyWith(), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(verificationMessage("m1"), nil).Once()
	f.push.On("SendMulticast", mock.Anything, payloadFor("m1"), mock.Anything).Return(&dto.MulticastResult{SuccessCount: 1}, nil).Once()

	_, err := f.service.HandleEnvelope(ctx, env)
	require.NoError(t, err)

	summary, err := f.service.HandleEnvelope(ctx, env)
	require.NoError(t, err)

	assert.True(t, summary.Skipped)
	assert.Zero(t, summary.VerificationRecords)
	assert.Len(t, f.records(t), 1)
	assert.Len(t, f.push.sent(), 1)
	assert.Equal(t, uint64(150), f.cursor(t))
	f.gmail.AssertExpectations(t)
}

func TestHandleEnvelope_StaleNotificationKeepsCursorAndDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID:            101,
		MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1"}},
	}), nil).Twice()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(verificationMessage("m1"), nil).Twice()

	first, err := f.service.HandleEnvelope(ctx, notificationEnvelope("alice@example.com", 90, 1))
	require.NoError(t, err)
	assert.False(t, first.CursorAdvanced)
	assert.Equal(t, startCursor, first.ToHistoryID)
	assert.Equal(t, 1, first.VerificationRecords)

	second, err := f.service.HandleEnvelope(ctx, notificationEnvelope("alice@example.com", 90, 2))
	require.NoError(t, err)
	assert.Zero(t, second.VerificationRecords)

	assert.Equal(t, startCursor, f.cursor(t))
	assert.Len(t, f.records(t), 1)
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_FetchFailureIsRetryable(t *testing.T) {
	f := newFixture(t, "token-1")
	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(nil, errors.New("deadline exceeded")).Once()

	_, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 1))

	assert.ErrorIs(t, err, mperrors.ErrUpstreamFetch)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, startCursor, f.cursor(t))
}

func TestHandleEnvelope_EnrichmentFailureAborts(t *testing.T) {
	f := newFixture(t, "token-1")

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID: 101,
		MessagesAdded: []dto.HistoryMessage{
			{MessageID: "m1", ThreadID: "t-m1"},
			{MessageID: "m2", ThreadID: "t-m2"},
		},
	}), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(verificationMessage("m1"), nil).Maybe()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m2").Return(nil, errors.New("500 backend error")).Once()

	_, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 1))

	assert.ErrorIs(t, err, mperrors.ErrMessageEnrichment)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, startCursor, f.cursor(t))
	assert.Empty(t, f.records(t))
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_DeletedBeforeFetchHoldsCursor(t *testing.T) {
	f := newFixture(t, "token-1")
	log, logs := logger.NewObservedLogger()
	f.service = NewMailboxSyncService(log, f.repos, f.gmail, f.push, passthroughLocker{}, f.publisher, Options{DispatchConcurrency: 2})

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID:            101,
		MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1"}},
	}), nil).Twice()
	gone := fmt.Errorf("%w: get message m1: googleapi: Error 404", mperrors.ErrMessageNotFound)
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(nil, gone).Twice()

	for i := 0; i < 2; i++ {
		_, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 1))
		assert.ErrorIs(t, err, mperrors.ErrMessageEnrichment)
		assert.ErrorIs(t, err, mperrors.ErrMessageNotFound)
		assert.True(t, IsRetryable(err))
	}

	assert.Equal(t, startCursor, f.cursor(t))
	assert.Equal(t, 2, logs.FilterMessageSnippet("is gone from Gmail").Len())
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_PushFailureStillCommits(t *testing.T) {
	f := newFixture(t, "token-1")

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID: 101,
		MessagesAdded: []dto.HistoryMessage{
			{MessageID: "m1", ThreadID: "t-m1"},
			{MessageID: "m2", ThreadID: "t-m2"},
		},
	}), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(verificationMessage("m1"), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m2").Return(plainMessage("m2"), nil).Once()
	f.push.On("SendMulticast", mock.Anything, payloadFor("m1"), mock.Anything).Return(nil, errors.New("fcm unavailable")).Once()
	f.push.On("SendMulticast", mock.Anything, payloadFor("m2"), mock.Anything).Return(&dto.MulticastResult{SuccessCount: 1}, nil).Once()

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 1))

	require.NoError(t, err)
	assert.True(t, summary.CursorAdvanced)
	assert.Equal(t, 1, summary.Notified)
	require.Equal(t, 1, summary.DispatchFailures())
	assert.ErrorIs(t, summary.DispatchErrors[0], mperrors.ErrPushDispatch)
	assert.Equal(t, uint64(150), f.cursor(t))
	assert.Len(t, f.records(t), 1)
	f.push.AssertExpectations(t)
}

func TestHandleEnvelope_NoDeviceTokens(t *testing.T) {
	f := newFixture(t)

	f.gmail.On("ListHistory", mock.Anything, mock.Anything, startCursor).Return(historyWith(dto.HistoryRecord{
		ID:            101,
		MessagesAdded: []dto.HistoryMessage{{MessageID: "m1", ThreadID: "t-m1"}},
	}), nil).Once()
	f.gmail.On("GetMessage", mock.Anything, mock.Anything, "m1").Return(plainMessage("m1"), nil).Once()

	summary, err := f.service.HandleEnvelope(context.Background(), notificationEnvelope("alice@example.com", 150, 1))

	require.NoError(t, err)
	assert.True(t, summary.CursorAdvanced)
	assert.Zero(t, summary.Notified)
	f.push.AssertNotCalled(t, "SendMulticast", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEnvelope_CursorMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orphan := &models.Mailbox{OwnerID: "owner-2", EmailAddress: "orphan@example.com"}
	require.NoError(t, f.repos.MailboxRepository.SaveMailbox(ctx, orphan))

	_, err := f.service.HandleEnvelope(ctx, notificationEnvelope("orphan@example.com", 150, 1))

	assert.ErrorIs(t, err, mperrors.ErrCursorNotFound)
	f.gmail.AssertNotCalled(t, "ListHistory", mock.Anything, mock.Anything, mock.Anything)
}
