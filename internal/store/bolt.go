package store

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"ParHist/internal/histogram"
)

var resultsBucket = []byte("results")

// BoltStore keeps result records in a bbolt database, one key per worker
// identity, value in the fixed wire form.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open result database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create results bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Persist(identity string, counts histogram.Counts) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(identity), counts.AppendBinary(nil))
	})
	if err != nil {
		return fmt.Errorf("failed to persist result for %s: %w", identity, err)
	}
	return nil
}

// Get fetches a persisted record by worker identity.
func (s *BoltStore) Get(identity string) (histogram.Counts, bool, error) {
	var counts histogram.Counts
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(resultsBucket).Get([]byte(identity))
		if v == nil {
			return nil
		}
		c, err := histogram.ReadBlock(bytes.NewReader(v))
		if err != nil {
			return fmt.Errorf("corrupt record for %s: %w", identity, err)
		}
		counts = c
		found = true
		return nil
	})
	return counts, found, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
