// internal/repo/repo.go
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"bud/internal/commit"
	"bud/internal/config"
	"bud/internal/diff"
	"bud/internal/errors"
	"bud/internal/hasher"
	"bud/internal/history"
	"bud/internal/index"
	"bud/internal/objects"
	"bud/internal/reflog"

	"go.uber.org/zap"
)

// DirName is the repository directory inside the working tree.
const DirName = ".bud"

const (
	objectsDir = "objects"
	headFile   = "HEAD"
	indexFile  = "index"
	configFile = "config"
	reflogDir  = "reflog"
)

// Repository is the handle every operation goes through. It is built once
// per invocation by Open and released with Close.
type Repository struct {
	Root    string // working tree
	Dir     string // Root/.bud
	Config  *config.Config
	Objects *objects.Store
	Index   *index.Index
	Graph   *commit.Graph
	History *history.Walker
	Diff    *diff.Engine
	Reflog  *reflog.Log
	Logger  *zap.Logger
}

// InitOptions configures a new repository.
type InitOptions struct {
	Hash string // defaults to hasher.Default
}

// Init creates the repository layout under worktree. Existing state is
// never touched: on an existing repository it fills in anything missing
// and returns an AlreadyInitialized error.
func Init(worktree string, opts InitOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(worktree)
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", worktree, err)
	}
	dir := filepath.Join(absPath, DirName)

	if opts.Hash == "" {
		opts.Hash = hasher.Default
	}
	if _, err := hasher.New(opts.Hash); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, objectsDir), 0755); err != nil {
		return errors.IO(dir, err)
	}

	created, err := createExclusive(filepath.Join(dir, headFile), nil)
	if err != nil {
		return err
	}
	if _, err := createExclusive(filepath.Join(dir, indexFile), []byte("[]")); err != nil {
		return err
	}

	cfgPath := filepath.Join(dir, configFile)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.Core.Hash = opts.Hash
		if err := cfg.Save(cfgPath); err != nil {
			return err
		}
	} else if err != nil {
		return errors.IO(cfgPath, err)
	}

	if !created {
		logger.Info("repository already initialized", zap.String("dir", dir))
		return errors.AlreadyInitialized(dir)
	}

	logger.Info("initialized repository", zap.String("dir", dir), zap.String("hash", opts.Hash))
	return nil
}

// createExclusive writes data to a new file and reports false if the file
// already existed.
func createExclusive(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.IO(path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return true, errors.IO(path, err)
	}
	return true, nil
}

// FindRoot searches start and its parents for a working tree holding a
// repository directory.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, DirName, headFile)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NotFound(start, "not a bud repository (or any of the parent directories)")
}

// Open finds the repository containing start and wires its components.
func Open(start string, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := FindRoot(start)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, DirName)

	cfg, err := config.Load(filepath.Join(dir, configFile))
	if err != nil {
		return nil, err
	}

	h, err := hasher.New(cfg.Core.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading hash algorithm: %w", err)
	}

	store, err := objects.New(h, objects.Options{
		Root:      filepath.Join(dir, objectsDir),
		CacheSize: cfg.Objects.CacheSize,
		Compress:  cfg.Objects.Compress,
		Compression: objects.CompressionOptions{
			MinSize: cfg.Objects.CompressMinSize,
			Level:   cfg.Objects.CompressLevel,
		},
	}, logger.Named("objects"))
	if err != nil {
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	// The reflog opens its database per call; holding it here would lock
	// out every other invocation while one is running.
	rlog := reflog.Open(filepath.Join(dir, reflogDir))

	ix := index.New(filepath.Join(dir, indexFile), logger.Named("index"))
	graph := commit.NewGraph(filepath.Join(dir, headFile), store, ix, logger.Named("commit"),
		commit.WithRecorder(rlog))

	r := &Repository{
		Root:    root,
		Dir:     dir,
		Config:  cfg,
		Objects: store,
		Index:   ix,
		Graph:   graph,
		History: history.NewWalker(graph),
		Diff:    diff.NewEngine(cfg.Diff.Context),
		Reflog:  rlog,
		Logger:  logger,
	}

	logger.Debug("opened repository", zap.String("root", root), zap.String("hash", h.Name()))
	return r, nil
}

// ConfigPath is where the repository configuration lives.
func (r *Repository) ConfigPath() string {
	return filepath.Join(r.Dir, configFile)
}

// Close ensures proper cleanup of resources
func (r *Repository) Close() error {
	if r == nil {
		return nil
	}

	if r.Objects != nil {
		r.Objects.Close()
		r.Objects = nil
	}

	return nil
}
