// Package reflog keeps a history of HEAD movements in a badger database
// next to the object store. It is auxiliary: nothing in the commit graph
// depends on it, but it can name commits that HEAD no longer reaches.
package reflog

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"bud/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const prefix = "reflog"

// Entry is one HEAD movement. IDs are UUIDv7, so key order is time order.
type Entry struct {
	ID      string    `json:"id"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (e *Entry) GetID() string { return e.ID }

type Log struct {
	db  *badger.DB // nil when the database is opened per call
	dir string
	now func() time.Time
}

// New uses an already open database.
func New(db *badger.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Open returns a log stored in dir. The database is opened for each call
// and closed again, so badger's directory lock is only held while a
// movement is recorded or read.
func Open(dir string) *Log {
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) withStore(fn func(*storage.BadgerStore) error) (err error) {
	db := l.db
	if db == nil {
		db, err = storage.Open(l.dir)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := db.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing reflog: %w", cerr)
			}
		}()
	}
	return fn(storage.NewBadgerStore(db, prefix))
}

// Record appends a movement from oldHead ("" for none) to newHead.
func (l *Log) Record(oldHead, newHead, message string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating reflog id: %w", err)
	}

	e := &Entry{
		ID:      id.String(),
		Old:     oldHead,
		New:     newHead,
		Message: message,
		Time:    l.now().UTC(),
	}
	err = l.withStore(func(s *storage.BadgerStore) error {
		return s.Create(e)
	})
	if err != nil {
		return fmt.Errorf("recording HEAD movement: %w", err)
	}
	return nil
}

// List returns every recorded movement, newest first.
func (l *Log) List() ([]Entry, error) {
	var entries []Entry
	err := l.withStore(func(s *storage.BadgerStore) error {
		return s.Each(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(entries)
	return entries, nil
}
