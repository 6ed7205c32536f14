package dto

import "time"

type HistoryMessage struct {
	MessageID string   `json:"id"`
	ThreadID  string   `json:"threadId"`
	LabelIDs  []string `json:"labelIds,omitempty"`
}

// HistoryRecord is one entry of users.history.list, any sub-list may be empty.
type HistoryRecord struct {
	ID              uint64           `json:"id"`
	MessagesAdded   []HistoryMessage `json:"messagesAdded,omitempty"`
	MessagesDeleted []HistoryMessage `json:"messagesDeleted,omitempty"`
	LabelsAdded     []HistoryMessage `json:"labelsAdded,omitempty"`
	LabelsRemoved   []HistoryMessage `json:"labelsRemoved,omitempty"`
}

type HistoryPage struct {
	Records   []HistoryRecord
	HistoryID uint64
}

type MessagePart struct {
	PartID   string
	MimeType string
	Filename string
	// Data is the base64url body exactly as returned by the API
	Data  string
	Parts []*MessagePart
}

type MessageDetail struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Snippet  string
	LabelIDs []string
	Payload  *MessagePart
}

type WatchResult struct {
	HistoryID  uint64    `json:"historyId"`
	Expiration time.Time `json:"expiration"`
}
