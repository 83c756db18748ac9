// Package commit builds, hashes, stores and reads commit records and keeps
// the HEAD pointer.
package commit

import (
	"bytes"
	"os"
	"time"
	"unicode/utf8"

	"bud/internal/errors"
	"bud/internal/objects"
	"bud/shared/types"

	"go.uber.org/zap"
)

// Stager is the part of the staging index a commit consumes.
type Stager interface {
	Clear() error
}

// HeadRecorder is told about every HEAD movement after it happens.
type HeadRecorder interface {
	Record(oldHead, newHead, message string) error
}

type Graph struct {
	headPath string
	store    *objects.Store
	stager   Stager
	recorder HeadRecorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Graph)

// WithRecorder attaches a HEAD movement log.
func WithRecorder(r HeadRecorder) Option {
	return func(g *Graph) { g.recorder = r }
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

func NewGraph(headPath string, store *objects.Store, stager Stager, logger *zap.Logger, opts ...Option) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Graph{
		headPath: headPath,
		store:    store,
		stager:   stager,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Head returns the current head digest, or "" when nothing has been
// committed yet.
func (g *Graph) Head() (string, error) {
	data, err := os.ReadFile(g.headPath)
	if err != nil {
		return "", errors.IO(g.headPath, err)
	}

	head := string(bytes.TrimSpace(data))
	if head == "" {
		return "", nil
	}
	if !g.store.Hasher().Valid(head) {
		return "", errors.CorruptData(g.headPath, "HEAD does not hold a digest", nil)
	}
	return head, nil
}

// CreateCommit records staged under parent ("" for none), moves HEAD to it
// and clears the staging index, in that order. If HEAD cannot be written
// the commit object stays behind unreferenced and the index is untouched.
func (g *Graph) CreateCommit(message string, staged []shared.Entry, parent string) (*Commit, string, error) {
	if len(staged) == 0 {
		return nil, "", errors.EmptyCommit()
	}
	if !utf8.ValidString(message) {
		return nil, "", errors.ValidationError("commit message is not valid UTF-8", message)
	}
	valid := g.store.Hasher().Valid
	for i, e := range staged {
		if !utf8.ValidString(e.Path) {
			return nil, "", errors.ValidationError("staged path is not valid UTF-8", e.Path)
		}
		if !valid(e.Digest) {
			err := errors.CorruptData(e.Path, "staged entry does not hold a digest", nil)
			err.Details = i
			return nil, "", err
		}
	}

	if parent != "" {
		ok, err := g.store.Has(parent)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", errors.NotFound(parent, "parent commit not found")
		}
	}

	c := &Commit{
		Timestamp: FormatTime(g.now()),
		Message:   message,
		Files:     append([]shared.Entry(nil), staged...),
		Parent:    parent,
	}

	data, err := c.Encode()
	if err != nil {
		return nil, "", err
	}

	digest, err := g.store.Put(data)
	if err != nil {
		return nil, "", err
	}

	if err := os.WriteFile(g.headPath, []byte(digest), 0644); err != nil {
		g.logger.Error("commit stored but HEAD not updated",
			zap.String("commit", digest), zap.Error(err))
		return nil, "", errors.IO(g.headPath, err)
	}

	if err := g.stager.Clear(); err != nil {
		return nil, "", err
	}

	if g.recorder != nil {
		if err := g.recorder.Record(parent, digest, message); err != nil {
			g.logger.Warn("recording HEAD movement", zap.String("commit", digest), zap.Error(err))
		}
	}

	g.logger.Info("created commit",
		zap.String("commit", digest),
		zap.String("parent", parent),
		zap.Int("files", len(c.Files)))

	return c, digest, nil
}

// GetCommit reads the commit stored under digest.
func (g *Graph) GetCommit(digest string) (*Commit, error) {
	data, err := g.store.Get(digest)
	if err != nil {
		return nil, err
	}
	return Decode(digest, data, g.store.Hasher().Valid)
}
