package dto

import "time"

// GmailNotificationReceived carries a raw push envelope through the async queue.
type GmailNotificationReceived struct {
	Envelope   PubSubEnvelope `json:"envelope"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// MailboxSynced is published once a sync run commits its cursor.
type MailboxSynced struct {
	MailboxID           string `json:"mailboxId"`
	EmailAddress        string `json:"emailAddress"`
	FromHistoryID       uint64 `json:"fromHistoryId"`
	ToHistoryID         uint64 `json:"toHistoryId"`
	Events              int    `json:"events"`
	Notified            int    `json:"notified"`
	VerificationRecords int    `json:"verificationRecords"`
	DispatchFailures    int    `json:"dispatchFailures"`
}
