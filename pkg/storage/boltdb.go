package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kannich/kannich/pkg/types"
)

var bucketRuns = []byte("runs")

// BoltStore implements Store on top of an embedded bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) <dataDir>/kannich.db and
// ensures the runs bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "kannich.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open run-history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveRun keys record by its StartedAt timestamp followed by a random
// suffix, so bbolt's lexicographically-ordered keys double as a
// chronological index without a secondary sort in ListRuns.
func (s *BoltStore) SaveRun(record *types.RunRecord) error {
	if record.ID == "" {
		record.ID = fmt.Sprintf("%020d-%s", record.StartedAt.UnixNano(), uuid.NewString())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(record.ID), data)
	})
}

// ListRuns walks the runs bucket from its last key backwards, so
// records come back most-recent-first. limit <= 0 returns every record.
func (s *BoltStore) ListRuns(limit int) ([]*types.RunRecord, error) {
	var records []*types.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				return nil
			}
			var record types.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal run record %s: %w", k, err)
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}
