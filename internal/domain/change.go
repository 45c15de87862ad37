package domain

// ChangeOp labels a delta emitted by a live query or event bridge.
type ChangeOp string

const (
	ChangeAdded   ChangeOp = "added"
	ChangeUpdated ChangeOp = "updated"
	ChangeRemoved ChangeOp = "removed"
)
