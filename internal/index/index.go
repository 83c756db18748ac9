// Package index persists the ordered list of staged entries awaiting the
// next commit.
package index

import (
	"bytes"
	"encoding/json"
	"os"
	"unicode/utf8"

	"bud/internal/errors"
	"bud/shared/types"

	"go.uber.org/zap"
)

// Index is the staging area file. It is a read-modify-write file with no
// locking: concurrent writers can lose entries.
type Index struct {
	path   string
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{path: path, logger: logger}
}

func (ix *Index) Path() string { return ix.path }

// Load returns the staged entries in insertion order. A missing or empty
// index file is an empty list.
func (ix *Index) Load() ([]shared.Entry, error) {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []shared.Entry{}, nil
		}
		return nil, errors.IO(ix.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []shared.Entry{}, nil
	}

	var entries []shared.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.CorruptData(ix.path, "unparsable index", err)
	}
	if entries == nil {
		entries = []shared.Entry{}
	}
	for i, e := range entries {
		if e.Path == "" || e.Digest == "" {
			err := errors.CorruptData(ix.path, "index entry missing path or hash", nil)
			err.Details = i
			return nil, err
		}
	}

	return entries, nil
}

// Append stages path at digest. Earlier entries for the same path are kept.
func (ix *Index) Append(path, digest string) error {
	if !utf8.ValidString(path) {
		return errors.ValidationError("path is not valid UTF-8", path)
	}

	entries, err := ix.Load()
	if err != nil {
		return err
	}

	entries = append(entries, shared.Entry{Path: path, Digest: digest})
	if err := ix.write(entries); err != nil {
		return err
	}

	ix.logger.Debug("staged entry",
		zap.String("path", path),
		zap.String("digest", digest),
		zap.Int("staged", len(entries)))
	return nil
}

// Clear empties the index. Only called after a successful commit.
func (ix *Index) Clear() error {
	return ix.write([]shared.Entry{})
}

func (ix *Index) write(entries []shared.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.CorruptData(ix.path, "encoding index", err)
	}
	if err := os.WriteFile(ix.path, data, 0644); err != nil {
		return errors.IO(ix.path, err)
	}
	return nil
}
