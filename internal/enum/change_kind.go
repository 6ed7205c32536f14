package enum

type ChangeKind string

const (
	ChangeAdded        ChangeKind = "added"
	ChangeDeleted      ChangeKind = "deleted"
	ChangeLabelAdded   ChangeKind = "label_added"
	ChangeLabelRemoved ChangeKind = "label_removed"
)

func (k ChangeKind) String() string {
	return string(k)
}

// IsLabelChange reports whether events of this kind carry label ids.
func (k ChangeKind) IsLabelChange() bool {
	return k == ChangeLabelAdded || k == ChangeLabelRemoved
}

type LockMode string

const (
	LockModeLocal    LockMode = "local"
	LockModePostgres LockMode = "postgres"
)

func (m LockMode) String() string {
	return string(m)
}
