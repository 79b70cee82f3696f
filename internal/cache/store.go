// Package cache keeps Confluence and Jira answers in a bbolt file so that
// repeated runs against the same documents skip the network.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielolaszy/archprompt/internal/logging"
	bolt "go.etcd.io/bbolt"
)

const (
	pagesBucket  = "pages"
	issuesBucket = "issues"
)

// Store is a TTL bound key/value cache of JSON documents.
type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	Stored time.Time       `json:"stored"`
	Value  json.RawMessage `json:"value"`
}

// Open opens or creates the cache file at path. Entries older than ttl are
// treated as missing; a ttl <= 0 never expires them.
func Open(path string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{pagesBucket, issuesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %w", err)
	}

	logging.Debug("opened cache", "path", path, "ttl", ttl)
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the cache file.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get decodes the fresh entry stored under key into v. It reports false
// when there is no entry or it has expired.
func (s *Store) Get(bucket, key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("unknown cache bucket %s", bucket)
		}
		if raw := b.Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	if s.ttl > 0 && s.now().Sub(e.Stored) > s.ttl {
		logging.Debug("cache entry expired", "bucket", bucket, "key", key, "stored", e.Stored)
		return false, nil
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// Put stores v under key.
func (s *Store) Put(bucket, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	data, err := json.Marshal(entry{Stored: s.now().UTC(), Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("unknown cache bucket %s", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// Purge removes every entry.
func (s *Store) Purge() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{pagesBucket, issuesBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}
