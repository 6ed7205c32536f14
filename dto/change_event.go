package dto

import "github.com/customeros/mailpulse/internal/enum"

type ChangeEvent struct {
	MessageID string          `json:"messageId"`
	ThreadID  string          `json:"threadId"`
	Kind      enum.ChangeKind `json:"kind"`
	LabelIDs  []string        `json:"labelIds,omitempty"`
	Position  int             `json:"position"`
}

type Verification struct {
	Codes []string `json:"codes"`
	Links []string `json:"links"`
}

func (v Verification) Found() bool {
	return len(v.Codes) > 0 || len(v.Links) > 0
}

// EnrichedEvent is a change event with the message detail needed to notify.
type EnrichedEvent struct {
	ChangeEvent
	Title        string
	Body         string
	Verified     bool
	Verification Verification
}
