package index

import (
	"os"
	"path/filepath"
	"testing"

	"bud/internal/errors"
	"bud/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	ix := New(path, nil)

	t.Run("missing file is empty", func(t *testing.T) {
		entries, err := ix.Load()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("append keeps order and duplicates", func(t *testing.T) {
		require.NoError(t, ix.Append("a.txt", "aaaa"))
		require.NoError(t, ix.Append("b.txt", "bbbb"))
		require.NoError(t, ix.Append("a.txt", "cccc"))

		entries, err := ix.Load()
		require.NoError(t, err)
		assert.Equal(t, []shared.Entry{
			{Path: "a.txt", Digest: "aaaa"},
			{Path: "b.txt", Digest: "bbbb"},
			{Path: "a.txt", Digest: "cccc"},
		}, entries)
	})

	t.Run("persisted format", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"path":"a.txt","hash":"aaaa"},{"path":"b.txt","hash":"bbbb"},{"path":"a.txt","hash":"cccc"}]`, string(data))
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, ix.Clear())

		entries, err := ix.Load()
		require.NoError(t, err)
		assert.Empty(t, entries)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	entries, err := New(path, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadCorrupt(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      "{oops",
		"wrong shape":   `{"path":"a"}`,
		"missing field": `[{"path":"a.txt"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := New(path, nil).Load()
			assert.ErrorIs(t, err, errors.ErrCorruptData)
		})
	}
}

func TestAppendOnCorruptIndexFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	err := New(path, nil).Append("a.txt", "aaaa")
	assert.ErrorIs(t, err, errors.ErrCorruptData)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestAppendRejectsInvalidUTF8(t *testing.T) {
	ix := New(filepath.Join(t.TempDir(), "index"), nil)

	err := ix.Append("b\xff.txt", "aaaa")
	assert.ErrorIs(t, err, errors.ErrValidation)

	entries, err := ix.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
