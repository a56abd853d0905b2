// Package settings provides the persistent key-value store backing
// account state. Values are organized into named groups, each mapped to
// a bbolt bucket, so state survives process restarts.
package settings

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// dirPerm is the permission mode for the settings directory (~/.accountd/).
	dirPerm = fs.FileMode(0o700)

	// filePerm is the permission mode for the settings database file.
	filePerm = fs.FileMode(0o600)

	// openTimeout is the maximum time to wait for the bolt database lock.
	openTimeout = 5 * time.Second
)

// Store wraps a bbolt database holding all persistent settings.
type Store struct {
	db *bolt.DB
}

// Open opens the settings database at ~/.accountd/state.db, creating it
// if it does not exist.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return OpenAt(path)
}

// OpenAt opens a settings database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Group returns a handle to the named group, creating its bucket on
// first write.
func (s *Store) Group(name string) *Group {
	return &Group{db: s.db, bucket: []byte(name)}
}

// DefaultPath returns the default settings database location:
// ~/.accountd/state.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".accountd", "state.db"), nil
}

// Group is a named key-value namespace within the store.
type Group struct {
	db     *bolt.DB
	bucket []byte
}

// Keys returns every key in the group. A group that has never been
// written to yields no keys.
func (g *Group) Keys() ([]string, error) {
	var keys []string

	err := g.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(g.bucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys in group %s: %w", g.bucket, err)
	}

	return keys, nil
}

// Get returns the value for key, or nil if absent.
func (g *Group) Get(key string) ([]byte, error) {
	var value []byte

	err := g.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(g.bucket)
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s from group %s: %w", key, g.bucket, err)
	}

	return value, nil
}

// Put writes the value for key. The write is durable before Put returns.
func (g *Group) Put(key string, value []byte) error {
	err := g.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(g.bucket)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing %s to group %s: %w", key, g.bucket, err)
	}

	return nil
}
