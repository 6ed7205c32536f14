package enum

type EntityType string

const (
	MAILBOX            EntityType = "MAILBOX"
	GMAIL_NOTIFICATION EntityType = "GMAIL_NOTIFICATION"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
