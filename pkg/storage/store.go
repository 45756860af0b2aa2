package storage

import (
	"github.com/kannich/kannich/pkg/types"
)

// Store persists RunRecords so `kannich --history` can report on past
// runs without re-running them. Implemented by *BoltStore.
type Store interface {
	// SaveRun inserts record, assigning it an ID ordered after every
	// previously saved record if it doesn't already have one.
	SaveRun(record *types.RunRecord) error

	// ListRuns returns up to limit records, most recent first. A limit
	// of 0 or less returns every record.
	ListRuns(limit int) ([]*types.RunRecord, error)

	Close() error
}
