package channel

import "github.com/google/uuid"

// PushedRow is a time-series row as it was read for an export. Revision is
// replaced on every save, so marking the row pushed only succeeds while it
// still holds the values that were sent.
type PushedRow struct {
	ID       uuid.UUID
	Revision uuid.UUID
}
