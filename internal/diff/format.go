package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// Stats counts changed lines in a hunk sequence.
type Stats struct {
	Additions int
	Deletions int
}

func Stat(hunks []Hunk) Stats {
	var s Stats
	for _, h := range hunks {
		switch h.Kind {
		case Added:
			s.Additions += len(splitLines(h.Text))
		case Removed:
			s.Deletions += len(splitLines(h.Text))
		}
	}
	return s
}

// Engine renders hunk sequences as text.
type Engine struct {
	contextLines int
}

// NewEngine creates a renderer that keeps contextLines unchanged lines
// around each change. Zero or less keeps every line.
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

// Format writes one line per input line, prefixed "+", "-" or " ". Long
// unchanged runs are collapsed into a "@@ N unchanged lines @@" marker.
func (e *Engine) Format(hunks []Hunk) string {
	var buf bytes.Buffer

	for i, hunk := range hunks {
		lines := splitLines(hunk.Text)

		if hunk.Kind == Unchanged && e.contextLines > 0 {
			head, tail := e.contextLines, e.contextLines
			if i == 0 {
				head = 0
			}
			if i == len(hunks)-1 {
				tail = 0
			}
			if len(lines) > head+tail {
				writeLines(&buf, " ", lines[:head])
				fmt.Fprintf(&buf, "@@ %d unchanged lines @@\n", len(lines)-head-tail)
				writeLines(&buf, " ", lines[len(lines)-tail:])
				continue
			}
		}

		switch hunk.Kind {
		case Added:
			writeLines(&buf, "+", lines)
		case Removed:
			writeLines(&buf, "-", lines)
		default:
			writeLines(&buf, " ", lines)
		}
	}

	return buf.String()
}

func writeLines(buf *bytes.Buffer, prefix string, lines []string) {
	for _, line := range lines {
		buf.WriteString(prefix)
		buf.WriteString(strings.TrimSuffix(line, "\n"))
		buf.WriteString("\n")
	}
}
