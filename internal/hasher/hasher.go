// Package hasher maps content to its fixed-length hex digest.
package hasher

import (
	"encoding/hex"
	"fmt"

	"bud/internal/errors"

	"github.com/multiformats/go-multihash"
)

const Default = "sha1"

// Supported lists the algorithms a repository may be initialized with.
var Supported = []string{"sha1", "sha2-256", "sha3-256", "blake3"}

type Hasher struct {
	name   string
	code   uint64
	hexLen int
}

func New(name string) (*Hasher, error) {
	supported := false
	for _, s := range Supported {
		if s == name {
			supported = true
			break
		}
	}
	code, ok := multihash.Names[name]
	if !supported || !ok {
		return nil, errors.ValidationError(fmt.Sprintf("unsupported hash algorithm %q", name), Supported)
	}

	h := &Hasher{name: name, code: code}
	empty, err := h.sum(nil)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", name, err)
	}
	h.hexLen = len(empty)
	return h, nil
}

// MustNew is New for algorithm names known at compile time.
func MustNew(name string) *Hasher {
	h, err := New(name)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *Hasher) Name() string { return h.name }

// Sum returns the lowercase hex digest of content.
func (h *Hasher) Sum(content []byte) string {
	d, err := h.sum(content)
	if err != nil {
		// Only reachable for an unregistered code, which New rules out.
		panic(err)
	}
	return d
}

func (h *Hasher) sum(content []byte) (string, error) {
	mh, err := multihash.Sum(content, h.code, -1)
	if err != nil {
		return "", err
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(decoded.Digest), nil
}

// Valid reports whether digest could have been produced by this hasher.
func (h *Hasher) Valid(digest string) bool {
	if len(digest) != h.hexLen {
		return false
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
