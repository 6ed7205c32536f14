package dto

const (
	SkipReasonAttemptsExceeded = "delivery_attempts_exceeded"
	SkipReasonEmptyHistory     = "empty_history"
)

// SyncSummary describes the outcome of one pipeline run.
type SyncSummary struct {
	RunID               string `json:"runId"`
	MailboxID           string `json:"mailboxId,omitempty"`
	EmailAddress        string `json:"emailAddress,omitempty"`
	Skipped             bool   `json:"skipped"`
	SkipReason          string `json:"skipReason,omitempty"`
	FromHistoryID       uint64 `json:"fromHistoryId,omitempty"`
	ToHistoryID         uint64 `json:"toHistoryId,omitempty"`
	CursorAdvanced      bool   `json:"cursorAdvanced"`
	Events              int    `json:"events"`
	Notified            int    `json:"notified"`
	VerificationRecords int    `json:"verificationRecords"`
	// DispatchErrors wrap ErrPushDispatch, one per failed event
	DispatchErrors []error `json:"-"`
}

func (s *SyncSummary) DispatchFailures() int {
	return len(s.DispatchErrors)
}
