package contentstore

import (
	"context"
	"encoding/hex"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"vitrine/core/types"
)

var bucketContent = []byte("content")

// BoltStore keeps payloads in a local BoltDB file keyed by their blake3-256
// digest, so identical payloads share one id.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the store at path.
func OpenBolt(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContent)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ContentIDFor returns the id BoltStore assigns to data.
func ContentIDFor(data []byte) types.ContentID {
	sum := blake3.Sum256(data)
	return types.ContentID("b3-" + hex.EncodeToString(sum[:]))
}

// Store writes data and returns its content id.
func (s *BoltStore) Store(ctx context.Context, data []byte) (types.ContentID, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := ContentIDFor(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContent).Put([]byte(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Fetch returns the payload stored under id.
func (s *BoltStore) Fetch(ctx context.Context, id types.ContentID) ([]byte, error) {
	if id.IsZero() {
		return nil, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketContent).Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
