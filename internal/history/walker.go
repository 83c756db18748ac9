// Package history walks the parent chain of commits.
package history

import (
	"iter"

	"bud/internal/commit"
	"bud/internal/errors"
)

// Source reads commit records by digest.
type Source interface {
	GetCommit(digest string) (*commit.Commit, error)
}

type Entry struct {
	Digest string
	Commit *commit.Commit
}

type Walker struct {
	source Source
}

func NewWalker(source Source) *Walker {
	return &Walker{source: source}
}

// Walk lazily yields start and then each ancestor, newest first. An empty
// start yields nothing. A repeated digest yields a CorruptHistory error and
// ends the walk; any read error likewise ends it.
func (w *Walker) Walk(start string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		seen := make(map[string]struct{})

		for digest := start; digest != ""; {
			if _, ok := seen[digest]; ok {
				yield(Entry{}, errors.CorruptHistory(digest))
				return
			}
			seen[digest] = struct{}{}

			c, err := w.source.GetCommit(digest)
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if !yield(Entry{Digest: digest, Commit: c}, nil) {
				return
			}
			digest = c.Parent
		}
	}
}

// Collect runs Walk to completion.
func (w *Walker) Collect(start string) ([]Entry, error) {
	var entries []Entry
	for e, err := range w.Walk(start) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
