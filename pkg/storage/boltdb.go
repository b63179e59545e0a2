package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/turbosync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketHistory      = []byte("history")
	bucketLastSchedule = []byte("last_schedule")
)

// BoltStore implements Store on top of an embedded BoltDB file, one bucket
// per entity, JSON-marshalled values keyed by ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "turbosync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketHistory, bucketLastSchedule} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// CreateHistory inserts or replaces a history record (upsert by ID).
func (s *BoltStore) CreateHistory(rec *types.SyncHistoryRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) GetHistory(id string) (*types.SyncHistoryRecord, error) {
	var rec types.SyncHistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("history record not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateHistory is an upsert, matching the teacher's CreateX/UpdateX
// convention for this BoltDB layer.
func (s *BoltStore) UpdateHistory(rec *types.SyncHistoryRecord) error {
	return s.CreateHistory(rec)
}

func (s *BoltStore) ListHistoryByIntegration(integrationID string, limit int) ([]*types.SyncHistoryRecord, error) {
	var all []*types.SyncHistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			var rec types.SyncHistoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.IntegrationID == integrationID {
				all = append(all, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListRunningHistory returns every non-terminal record — status pending or
// running, per spec.md §3/§8's "at most one {pending, running} record per
// integration" invariant — not just status=="running".
func (s *BoltStore) ListRunningHistory() ([]*types.SyncHistoryRecord, error) {
	var running []*types.SyncHistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			var rec types.SyncHistoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Status.Terminal() {
				running = append(running, &rec)
			}
			return nil
		})
	})
	return running, err
}

// DeleteExpiredHistory removes every record whose ExpiresAt has passed, and
// returns the count removed.
func (s *BoltStore) DeleteExpiredHistory(now time.Time) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		var expiredKeys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec types.SyncHistoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now) {
				key := make([]byte, len(k))
				copy(key, k)
				expiredKeys = append(expiredKeys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range expiredKeys {
			if err := b.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *BoltStore) SetLastScheduled(integrationID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLastSchedule)
		data, err := at.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(integrationID), data)
	})
}

func (s *BoltStore) GetLastScheduled(integrationID string) (time.Time, bool, error) {
	var t time.Time
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLastSchedule)
		data := b.Get([]byte(integrationID))
		if data == nil {
			return nil
		}
		found = true
		return t.UnmarshalBinary(data)
	})
	return t, found, err
}
