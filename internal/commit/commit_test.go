package commit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bud/internal/errors"
	"bud/internal/hasher"
	"bud/internal/index"
	"bud/internal/objects"
	"bud/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)

type recordedMove struct {
	old, new, message string
}

type fakeRecorder struct {
	moves []recordedMove
	err   error
}

func (r *fakeRecorder) Record(oldHead, newHead, message string) error {
	r.moves = append(r.moves, recordedMove{oldHead, newHead, message})
	return r.err
}

type fixture struct {
	root  string
	store *objects.Store
	index *index.Index
	graph *Graph
	rec   *fakeRecorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	store, err := objects.New(hasher.MustNew(hasher.Default), objects.Options{Root: filepath.Join(root, "objects")}, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	headPath := filepath.Join(root, "HEAD")
	require.NoError(t, os.WriteFile(headPath, nil, 0644))

	ix := index.New(filepath.Join(root, "index"), nil)
	require.NoError(t, ix.Clear())

	rec := &fakeRecorder{}
	g := NewGraph(headPath, store, ix, nil, WithRecorder(rec), WithClock(func() time.Time { return fixedTime }))

	return &fixture{root: root, store: store, index: ix, graph: g, rec: rec}
}

func (f *fixture) stage(t *testing.T, path, content string) {
	t.Helper()
	digest, err := f.store.Put([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.index.Append(path, digest))
}

func (f *fixture) commit(t *testing.T, message string) string {
	t.Helper()
	staged, err := f.index.Load()
	require.NoError(t, err)
	parent, err := f.graph.Head()
	require.NoError(t, err)
	_, digest, err := f.graph.CreateCommit(message, staged, parent)
	require.NoError(t, err)
	return digest
}

func TestEncode(t *testing.T) {
	c := &Commit{
		Timestamp: FormatTime(fixedTime),
		Message:   "first <commit>",
		Files: []shared.Entry{
			{Path: "a.txt", Digest: "f572d396fae9206628714fb2ce00f72e94f2258f"},
		},
	}

	data, err := c.Encode()
	require.NoError(t, err)
	assert.Equal(t,
		`{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"first <commit>",`+
			`"files":[{"path":"a.txt","hash":"f572d396fae9206628714fb2ce00f72e94f2258f"}],"parent":null}`,
		string(data))

	again, err := c.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	c.Parent = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	withParent, err := c.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(withParent), `"parent":"da39a3ee5e6b4b0d3255bfef95601890afd80709"}`)
}

func TestDecodeRoundTrip(t *testing.T) {
	h := hasher.MustNew(hasher.Default)
	c := &Commit{
		Timestamp: FormatTime(fixedTime),
		Message:   "multi\nline",
		Files: []shared.Entry{
			{Path: "a.txt", Digest: h.Sum([]byte("a"))},
			{Path: "a.txt", Digest: h.Sum([]byte("b"))},
		},
		Parent: h.Sum([]byte("parent")),
	}
	data, err := c.Encode()
	require.NoError(t, err)

	got, err := Decode(h.Sum(data), data, h.Valid)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeCorrupt(t *testing.T) {
	h := hasher.MustNew(hasher.Default)
	valid := h.Sum([]byte("x"))

	cases := map[string]string{
		"blob":            "hello\n",
		"empty":           "",
		"unknown version": `{"version":2,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":[],"parent":null}`,
		"no timestamp":    `{"version":1,"message":"m","files":[],"parent":null}`,
		"bad timestamp":   `{"version":1,"timestamp":"yesterday","message":"m","files":[],"parent":null}`,
		"null files":      `{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":null,"parent":null}`,
		"bad file hash":   `{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":[{"path":"a","hash":"zz"}],"parent":null}`,
		"bad parent":      `{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":[],"parent":"HEAD"}`,
		"unknown field":   `{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":[],"parent":null,"x":1}`,
		"trailing data":   fmt.Sprintf(`{"version":1,"timestamp":"2024-03-01T12:30:45.123Z","message":"m","files":[{"path":"a","hash":%q}],"parent":null} {}`, valid),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode("d1g35t", []byte(body), h.Valid)
			assert.ErrorIs(t, err, errors.ErrCorruptData)
			assert.Contains(t, err.Error(), "d1g35t")
		})
	}
}

func TestCreateCommit(t *testing.T) {
	f := setup(t)

	t.Run("no commits yet", func(t *testing.T) {
		head, err := f.graph.Head()
		require.NoError(t, err)
		assert.Equal(t, "", head)
	})

	t.Run("empty commit is refused", func(t *testing.T) {
		_, _, err := f.graph.CreateCommit("nothing", nil, "")
		assert.ErrorIs(t, err, errors.ErrEmptyCommit)

		head, err := f.graph.Head()
		require.NoError(t, err)
		assert.Equal(t, "", head)
	})

	f.stage(t, "a.txt", "hello\n")
	h1 := f.commit(t, "first")

	t.Run("first commit", func(t *testing.T) {
		head, err := f.graph.Head()
		require.NoError(t, err)
		assert.Equal(t, h1, head)

		c, err := f.graph.GetCommit(h1)
		require.NoError(t, err)
		assert.Equal(t, "", c.Parent)
		assert.Equal(t, "first", c.Message)
		assert.Equal(t, "2024-03-01T12:30:45.123Z", c.Timestamp)
		assert.Equal(t, []shared.Entry{{Path: "a.txt", Digest: "f572d396fae9206628714fb2ce00f72e94f2258f"}}, c.Files)

		staged, err := f.index.Load()
		require.NoError(t, err)
		assert.Empty(t, staged)
	})

	t.Run("digest is the hash of the stored encoding", func(t *testing.T) {
		c, err := f.graph.GetCommit(h1)
		require.NoError(t, err)
		data, err := c.Encode()
		require.NoError(t, err)
		assert.Equal(t, h1, f.store.Hasher().Sum(data))
	})

	f.stage(t, "a.txt", "hello\nworld\n")
	f.stage(t, "a.txt", "hello\nworld\n!\n")
	h2 := f.commit(t, "second")

	t.Run("second commit links parent and keeps duplicates", func(t *testing.T) {
		c, err := f.graph.GetCommit(h2)
		require.NoError(t, err)
		assert.Equal(t, h1, c.Parent)
		assert.Len(t, c.Files, 2)
	})

	t.Run("recorder saw both moves", func(t *testing.T) {
		assert.Equal(t, []recordedMove{
			{"", h1, "first"},
			{h1, h2, "second"},
		}, f.rec.moves)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, _, err := f.graph.CreateCommit("orphan", []shared.Entry{{Path: "a", Digest: h1}},
			"0000000000000000000000000000000000000000")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("GetCommit of a blob", func(t *testing.T) {
		_, err := f.graph.GetCommit("f572d396fae9206628714fb2ce00f72e94f2258f")
		assert.ErrorIs(t, err, errors.ErrCorruptData)
	})

	t.Run("GetCommit missing", func(t *testing.T) {
		_, err := f.graph.GetCommit("1111111111111111111111111111111111111111")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestRecorderFailureDoesNotFailCommit(t *testing.T) {
	f := setup(t)
	f.rec.err = fmt.Errorf("disk full")

	f.stage(t, "a.txt", "hello\n")
	digest := f.commit(t, "first")

	head, err := f.graph.Head()
	require.NoError(t, err)
	assert.Equal(t, digest, head)
}

// A failure between storing the commit object and writing HEAD leaves an
// unreferenced object while HEAD and the index keep their old state.
func TestHeadWriteFailureWindow(t *testing.T) {
	f := setup(t)
	f.stage(t, "a.txt", "hello\n")
	staged, err := f.index.Load()
	require.NoError(t, err)

	headPath := filepath.Join(f.root, "HEAD")
	require.NoError(t, os.Remove(headPath))
	require.NoError(t, os.Mkdir(headPath, 0755))

	_, _, err = f.graph.CreateCommit("first", staged, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIO)

	after, err := f.index.Load()
	require.NoError(t, err)
	assert.Equal(t, staged, after, "index must not be cleared")

	expected := &Commit{Timestamp: FormatTime(fixedTime), Message: "first", Files: staged}
	data, err := expected.Encode()
	require.NoError(t, err)
	ok, err := f.store.Has(f.store.Hasher().Sum(data))
	require.NoError(t, err)
	assert.True(t, ok, "commit object was written before HEAD")

	require.NoError(t, os.Remove(headPath))
	require.NoError(t, os.WriteFile(headPath, nil, 0644))
	head, err := f.graph.Head()
	require.NoError(t, err)
	assert.Equal(t, "", head)
	assert.Empty(t, f.rec.moves)
}

func TestHeadCorrupt(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "HEAD"), []byte("refs/heads/main\n"), 0644))

	_, err := f.graph.Head()
	assert.ErrorIs(t, err, errors.ErrCorruptData)
}

func TestEncodeHTMLCharactersRoundTrip(t *testing.T) {
	h := hasher.MustNew(hasher.Default)
	c := &Commit{
		Timestamp: FormatTime(fixedTime),
		Message:   "a & b <c> d",
		Files:     []shared.Entry{{Path: "x&y.txt", Digest: h.Sum([]byte("x"))}},
	}

	data, err := c.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"a & b <c> d"`)
	assert.Contains(t, string(data), `"path":"x&y.txt"`)
	assert.NotContains(t, string(data), `\u00`)

	got, err := Decode(h.Sum(data), data, h.Valid)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCreateCommitRejectsInvalidInput(t *testing.T) {
	f := setup(t)
	blob, err := f.store.Put([]byte("content\n"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		message string
		staged  []shared.Entry
		want    error
	}{
		{
			name:    "message is not UTF-8",
			message: "msg\xfe",
			staged:  []shared.Entry{{Path: "a.txt", Digest: blob}},
			want:    errors.ErrValidation,
		},
		{
			name:    "path is not UTF-8",
			message: "msg",
			staged:  []shared.Entry{{Path: "a.txt", Digest: blob}, {Path: "b\xff.txt", Digest: blob}},
			want:    errors.ErrValidation,
		},
		{
			name:    "malformed digest",
			message: "msg",
			staged:  []shared.Entry{{Path: "a.txt", Digest: "not-a-digest"}},
			want:    errors.ErrCorruptData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.store.List()
			require.NoError(t, err)

			_, _, err = f.graph.CreateCommit(tt.message, tt.staged, "")
			assert.ErrorIs(t, err, tt.want)

			head, err := f.graph.Head()
			require.NoError(t, err)
			assert.Equal(t, "", head)

			after, err := f.store.List()
			require.NoError(t, err)
			assert.Equal(t, before, after, "nothing is stored")
		})
	}
	assert.Empty(t, f.rec.moves)
}
