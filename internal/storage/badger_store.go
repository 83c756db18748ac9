// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"bud/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// Open opens (creating if needed) a badger database at dir with badger's
// own logging silenced.
func Open(dir string) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.IO(dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.IO(dir, fmt.Errorf("opening database: %w", err))
	}
	return db, nil
}

// OpenInMemory is Open for tests.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	return badger.Open(opts)
}

// BadgerStore provides generic storage operations over one key prefix.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) Create(entity Entity) error {
	if entity.GetID() == "" {
		return errors.ValidationError("entity ID cannot be empty", nil)
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.makeKey(entity.GetID())
	return s.db.Update(func(txn *badger.Txn) error {
		// Check if key already exists
		_, err := txn.Get(key)
		if err == nil {
			return errors.ValidationError("entity already exists", entity.GetID())
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		return txn.Set(key, data)
	})
}

// Each calls fn with the raw value of every entity in key order. Iteration
// stops at the first error fn returns.
func (s *BadgerStore) Each(fn func(val []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(s.prefix + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}
