// Package objects is the content-addressable store. Blobs and commit
// records share one keyspace: objects/<hex digest>.
package objects

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bud/internal/errors"
	"bud/internal/hasher"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const MinPrefixLen = 4

// Options configures Store behavior
type Options struct {
	Root        string // objects directory
	CacheSize   int    // Number of objects to cache
	Compress    bool
	Compression CompressionOptions
}

type Store struct {
	root   string
	hasher *hasher.Hasher
	cache  *lru.Cache[string, []byte]
	codec  *codec // nil when compression is off
	logger *zap.Logger
}

func New(h *hasher.Hasher, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.IO(opts.Root, err)
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	s := &Store{
		root:   opts.Root,
		hasher: h,
		cache:  cache,
		logger: logger,
	}

	if opts.Compress {
		c, err := newCodec(opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("setting up compression: %w", err)
		}
		s.codec = c
	}

	return s, nil
}

func (s *Store) Hasher() *hasher.Hasher { return s.hasher }

// Put stores content under its digest and returns the digest. Writing an
// existing digest is a no-op. The write is not atomic: a crash mid-write
// leaves a truncated object that Get reports as corrupt.
func (s *Store) Put(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}

	digest := s.hasher.Sum(content)
	path := s.path(digest)

	if _, err := os.Stat(path); err == nil {
		s.logger.Debug("object already stored", zap.String("digest", digest))
		s.cache.Add(digest, bytes.Clone(content))
		return digest, nil
	} else if !os.IsNotExist(err) {
		return "", errors.IO(path, err)
	}

	data := content
	if s.codec != nil {
		data = s.codec.compress(content)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.IO(path, err)
	}

	s.logger.Debug("stored object",
		zap.String("digest", digest),
		zap.Int("size", len(content)),
		zap.Int("stored_size", len(data)))

	s.cache.Add(digest, bytes.Clone(content))
	return digest, nil
}

// Get returns the content stored under digest. The caller owns the
// returned slice.
func (s *Store) Get(digest string) ([]byte, error) {
	if !s.hasher.Valid(digest) {
		return nil, errors.NotFound(digest, "malformed object digest")
	}

	if content, ok := s.cache.Get(digest); ok {
		return bytes.Clone(content), nil
	}

	path := s.path(digest)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(digest, "object not found")
		}
		return nil, errors.IO(path, err)
	}

	content, err := s.decode(digest, raw)
	if err != nil {
		return nil, err
	}

	s.cache.Add(digest, bytes.Clone(content))
	return content, nil
}

// decode accepts raw bytes that hash to digest, or zstd frames that
// decompress to such bytes.
func (s *Store) decode(digest string, raw []byte) ([]byte, error) {
	if s.hasher.Sum(raw) == digest {
		return raw, nil
	}

	if !isCompressed(raw) {
		return nil, errors.CorruptData(digest, "content hash mismatch", nil)
	}

	var dec *zstd.Decoder
	if s.codec != nil {
		dec = s.codec.dec
	}
	content, err := decompress(dec, raw)
	if err != nil {
		return nil, errors.CorruptData(digest, "decompressing object", err)
	}
	if s.hasher.Sum(content) != digest {
		return nil, errors.CorruptData(digest, "content hash mismatch", nil)
	}
	return content, nil
}

func (s *Store) Has(digest string) (bool, error) {
	if !s.hasher.Valid(digest) {
		return false, nil
	}
	if s.cache.Contains(digest) {
		return true, nil
	}

	_, err := os.Stat(s.path(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.IO(s.path(digest), err)
}

// List returns every stored digest in sorted order. Files whose names are
// not digests are ignored.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.IO(s.root, err)
	}

	digests := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !s.hasher.Valid(e.Name()) {
			continue
		}
		digests = append(digests, e.Name())
	}
	sort.Strings(digests)
	return digests, nil
}

// Resolve expands an abbreviated digest to the single stored digest it
// prefixes.
func (s *Store) Resolve(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if s.hasher.Valid(prefix) {
		return prefix, nil
	}
	if len(prefix) < MinPrefixLen {
		return "", errors.ValidationError(
			fmt.Sprintf("digest prefix must be at least %d characters", MinPrefixLen), prefix)
	}

	digests, err := s.List()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, d := range digests {
		if strings.HasPrefix(d, prefix) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return "", errors.NotFound(prefix, "no object matches prefix")
	case 1:
		return matches[0], nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("ambiguous digest prefix %s", prefix), matches)
	}
}

// Verify rehashes every stored object and returns the digests whose
// content does not match. The cache is bypassed.
func (s *Store) Verify() ([]string, error) {
	digests, err := s.List()
	if err != nil {
		return nil, err
	}

	var corrupt []string
	for _, d := range digests {
		path := s.path(d)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.IO(path, err)
		}
		if _, err := s.decode(d, raw); err != nil {
			s.logger.Warn("corrupt object", zap.String("digest", d), zap.Error(err))
			corrupt = append(corrupt, d)
		}
	}
	return corrupt, nil
}

func (s *Store) Close() {
	if s.codec != nil {
		s.codec.close()
		s.codec = nil
	}
}

func (s *Store) path(digest string) string {
	return filepath.Join(s.root, digest)
}
