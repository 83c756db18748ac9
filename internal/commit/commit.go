package commit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"bud/internal/errors"
	"bud/shared/types"
)

// EncodingVersion is written into every commit record. Changing the
// encoding changes every commit digest, so it needs a new version.
const EncodingVersion = 1

// TimeLayout is the fixed UTC, millisecond precision timestamp format.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Commit is an immutable snapshot record. Its digest is the hash of
// Encode's output. Parent is "" for the first commit.
type Commit struct {
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	Files     []shared.Entry `json:"files"`
	Parent    string         `json:"parent"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Encode writes the canonical form:
//
//	{"version":1,"timestamp":"..","message":"..","files":[{"path":"..","hash":".."}],"parent":".."|null}
//
// Field order is fixed here rather than left to a serializer.
func (c *Commit) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"version":`)
	fmt.Fprintf(&buf, "%d", EncodingVersion)

	buf.WriteString(`,"timestamp":`)
	if err := writeString(&buf, c.Timestamp); err != nil {
		return nil, err
	}

	buf.WriteString(`,"message":`)
	if err := writeString(&buf, c.Message); err != nil {
		return nil, err
	}

	buf.WriteString(`,"files":[`)
	for i, f := range c.Files {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"path":`)
		if err := writeString(&buf, f.Path); err != nil {
			return nil, err
		}
		buf.WriteString(`,"hash":`)
		if err := writeString(&buf, f.Digest); err != nil {
			return nil, err
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	buf.WriteString(`,"parent":`)
	if c.Parent == "" {
		buf.WriteString("null")
	} else if err := writeString(&buf, c.Parent); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeString appends s as a JSON string. HTML characters are written
// as is; escaping them would change every digest under version 1.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

type wireFile struct {
	Path *string `json:"path"`
	Hash *string `json:"hash"`
}

type wireCommit struct {
	Version   *int       `json:"version"`
	Timestamp *string    `json:"timestamp"`
	Message   *string    `json:"message"`
	Files     []wireFile `json:"files"`
	Parent    *string    `json:"parent"`
}

// Decode parses a stored record. valid checks digest syntax for the file
// hashes and the parent. Any shape mismatch is CorruptData for digest.
func Decode(digest string, data []byte, valid func(string) bool) (*Commit, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireCommit
	if err := dec.Decode(&w); err != nil {
		return nil, errors.CorruptData(digest, "object is not a commit", err)
	}
	if dec.More() {
		return nil, errors.CorruptData(digest, "trailing data after commit", nil)
	}

	switch {
	case w.Version == nil || *w.Version != EncodingVersion:
		return nil, errors.CorruptData(digest, "unsupported commit encoding version", nil)
	case w.Timestamp == nil || *w.Timestamp == "":
		return nil, errors.CorruptData(digest, "commit missing timestamp", nil)
	case w.Message == nil:
		return nil, errors.CorruptData(digest, "commit missing message", nil)
	case w.Files == nil:
		return nil, errors.CorruptData(digest, "commit missing files", nil)
	}

	if _, err := time.Parse(TimeLayout, *w.Timestamp); err != nil {
		return nil, errors.CorruptData(digest, "commit timestamp", err)
	}

	c := &Commit{
		Timestamp: *w.Timestamp,
		Message:   *w.Message,
		Files:     make([]shared.Entry, 0, len(w.Files)),
	}

	for i, f := range w.Files {
		if f.Path == nil || *f.Path == "" || f.Hash == nil || !valid(*f.Hash) {
			err := errors.CorruptData(digest, "commit file entry", nil)
			err.Details = i
			return nil, err
		}
		c.Files = append(c.Files, shared.Entry{Path: *f.Path, Digest: *f.Hash})
	}

	if w.Parent != nil {
		if !valid(*w.Parent) {
			return nil, errors.CorruptData(digest, "commit parent is not a digest", nil)
		}
		c.Parent = *w.Parent
	}

	return c, nil
}
