package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bud/internal/hasher"
	"bud/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStager struct {
	root string
	h    *hasher.Hasher
}

func (s *recordingStager) Add(path string) ([]shared.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return nil, err
	}
	return []shared.Entry{{Path: filepath.ToSlash(rel), Digest: s.h.Sum(data)}}, nil
}

func startWatcher(t *testing.T, root string, targets []string) (*Watcher, <-chan shared.Entry) {
	t.Helper()
	h := hasher.MustNew(hasher.Default)

	w, err := New(root, targets, &recordingStager{root: root, h: h}, h, nil)
	require.NoError(t, err)

	staged := make(chan shared.Entry, 64)
	w.OnStage = func(e shared.Entry) { staged <- e }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
		w.Close()
	})
	return w, staged
}

// waitFor drains staged entries until one matches path and digest.
func waitFor(t *testing.T, staged <-chan shared.Entry, path, digest string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-staged:
			if e.Path == path && e.Digest == digest {
				return
			}
		case <-timeout:
			t.Fatalf("%s was not staged with digest %s", path, digest)
		}
	}
}

func TestWatcherStagesWrites(t *testing.T) {
	root := t.TempDir()
	h := hasher.MustNew(hasher.Default)
	_, staged := startWatcher(t, root, []string{root})

	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))
	waitFor(t, staged, "a.txt", h.Sum([]byte("hello\n")))

	require.NoError(t, os.WriteFile(path, []byte("hello\nworld\n"), 0644))
	waitFor(t, staged, "a.txt", h.Sum([]byte("hello\nworld\n")))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	h := hasher.MustNew(hasher.Default)
	_, staged := startWatcher(t, root, []string{root})

	sub := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.go"), []byte("package pkg\n"), 0644))

	waitFor(t, staged, "src/pkg/x.go", h.Sum([]byte("package pkg\n")))
}

func TestWatcherSingleFileTarget(t *testing.T) {
	root := t.TempDir()
	h := hasher.MustNew(hasher.Default)
	target := filepath.Join(root, "only.txt")
	require.NoError(t, os.WriteFile(target, []byte("v1\n"), 0644))

	_, staged := startWatcher(t, root, []string{target})

	require.NoError(t, os.WriteFile(filepath.Join(root, "other.txt"), []byte("ignored\n"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("v2\n"), 0644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-staged:
			require.Equal(t, "only.txt", e.Path)
			if e.Digest == h.Sum([]byte("v2\n")) {
				return
			}
		case <-timeout:
			t.Fatal("only.txt was not staged")
		}
	}
}

func TestWatcherIgnoresRepositoryDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".bud", "objects"), 0755))
	w, _ := startWatcher(t, root, []string{root})

	assert.False(t, w.accepts(filepath.Join(root, ".bud", "index")))
	assert.False(t, w.accepts(filepath.Join(root, ".bud", "objects", "abcd")))
	assert.False(t, w.accepts(filepath.Join(t.TempDir(), "elsewhere.txt")))
	assert.True(t, w.accepts(filepath.Join(root, "src", "main.go")))
}

func TestNewRejectsMissingTarget(t *testing.T) {
	root := t.TempDir()
	h := hasher.MustNew(hasher.Default)
	_, err := New(root, []string{filepath.Join(root, "missing")}, &recordingStager{root: root, h: h}, h, nil)
	assert.Error(t, err)
}
