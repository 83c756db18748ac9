package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"bud/internal/commit"
	"bud/internal/diff"
	"bud/internal/errors"
	"bud/internal/history"
	"bud/shared/types"

	"go.uber.org/zap"
)

// FileDiff is the change to one file entry of a commit. ParentDigest is ""
// when the parent has no entry for Path.
type FileDiff struct {
	Path         string
	Digest       string
	ParentDigest string
	Hunks        []diff.Hunk
}

// Add stages the current content of path. A directory stages every file
// below it in lexical order, skipping the repository directory.
func (r *Repository) Add(path string) ([]shared.Entry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(path, "no such file")
		}
		return nil, errors.IO(path, err)
	}

	if !info.IsDir() {
		e, err := r.addFile(absPath)
		if err != nil {
			return nil, err
		}
		return []shared.Entry{e}, nil
	}

	var added []shared.Entry
	err = filepath.WalkDir(absPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.IO(p, err)
		}
		if d.IsDir() {
			if d.Name() == DirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		e, err := r.addFile(p)
		if err != nil {
			return err
		}
		added = append(added, e)
		return nil
	})
	if err != nil {
		return added, err
	}

	return added, nil
}

func (r *Repository) addFile(absPath string) (shared.Entry, error) {
	rel, err := r.relPath(absPath)
	if err != nil {
		return shared.Entry{}, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return shared.Entry{}, errors.IO(absPath, err)
	}

	digest, err := r.Objects.Put(data)
	if err != nil {
		return shared.Entry{}, err
	}

	if err := r.Index.Append(rel, digest); err != nil {
		return shared.Entry{}, err
	}

	r.Logger.Info("staged file", zap.String("path", rel), zap.String("digest", digest))
	return shared.Entry{Path: rel, Digest: digest}, nil
}

// relPath maps an absolute path to the slash separated, working tree
// relative form stored in the index.
func (r *Repository) relPath(absPath string) (string, error) {
	rel, err := filepath.Rel(r.Root, absPath)
	if err != nil {
		return "", errors.ValidationError("path is outside the repository", absPath)
	}
	rel = filepath.ToSlash(rel)
	if !utf8.ValidString(rel) {
		return "", errors.ValidationError("path is not valid UTF-8", absPath)
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.ValidationError("path is outside the repository", absPath)
	}
	if rel == DirName || strings.HasPrefix(rel, DirName+"/") {
		return "", errors.ValidationError("path is inside the repository directory", absPath)
	}
	return rel, nil
}

// Staged returns the entries waiting for the next commit.
func (r *Repository) Staged() ([]shared.Entry, error) {
	return r.Index.Load()
}

// Commit turns the staged entries into a commit on top of HEAD.
func (r *Repository) Commit(message string) (*commit.Commit, string, error) {
	staged, err := r.Index.Load()
	if err != nil {
		return nil, "", err
	}

	parent, err := r.Graph.Head()
	if err != nil {
		return nil, "", err
	}

	return r.Graph.CreateCommit(message, staged, parent)
}

// Log returns the commits reachable from HEAD, newest first.
func (r *Repository) Log() ([]history.Entry, error) {
	head, err := r.Graph.Head()
	if err != nil {
		return nil, err
	}
	return r.History.Collect(head)
}

// Resolve expands a possibly abbreviated commit digest.
func (r *Repository) Resolve(rev string) (string, error) {
	return r.Objects.Resolve(rev)
}

// ShowDiff diffs every file entry of the target commit against the first
// entry with the same path in its parent, in the target's file order.
// Files absent from the parent, and every file of a root commit, diff
// against nothing.
func (r *Repository) ShowDiff(target string) ([]FileDiff, error) {
	c, err := r.Graph.GetCommit(target)
	if err != nil {
		return nil, err
	}

	var parent *commit.Commit
	if c.Parent != "" {
		parent, err = r.Graph.GetCommit(c.Parent)
		if err != nil {
			return nil, fmt.Errorf("reading parent of %s: %w", target, err)
		}
	}

	diffs := make([]FileDiff, 0, len(c.Files))
	for _, f := range c.Files {
		content, err := r.Objects.Get(f.Digest)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Path, err)
		}

		fd := FileDiff{Path: f.Path, Digest: f.Digest}

		prev, ok := findEntry(parent, f.Path)
		if !ok {
			fd.Hunks = diff.NewFile(string(content))
			diffs = append(diffs, fd)
			continue
		}

		prevContent, err := r.Objects.Get(prev.Digest)
		if err != nil {
			return nil, fmt.Errorf("reading %s in parent: %w", f.Path, err)
		}
		fd.ParentDigest = prev.Digest
		fd.Hunks = diff.Diff(string(prevContent), string(content))
		diffs = append(diffs, fd)
	}

	return diffs, nil
}

// findEntry returns the first entry for path in c's file list.
func findEntry(c *commit.Commit, path string) (shared.Entry, bool) {
	if c == nil {
		return shared.Entry{}, false
	}
	for _, e := range c.Files {
		if e.Path == path {
			return e, true
		}
	}
	return shared.Entry{}, false
}

// Verify rehashes every stored object and returns the corrupt digests.
func (r *Repository) Verify() ([]string, error) {
	return r.Objects.Verify()
}
