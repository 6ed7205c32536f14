package dto

// PubSubEnvelope is the body of a Cloud Pub/Sub push delivery.
type PubSubEnvelope struct {
	Message         PubSubMessage `json:"message"`
	Subscription    string        `json:"subscription,omitempty"`
	DeliveryAttempt *int          `json:"deliveryAttempt,omitempty"`
}

type PubSubMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// GmailNotification is the decoded "mailbox changed" notice.
type GmailNotification struct {
	EmailAddress string
	HistoryID    uint64
	Attempt      int
}
