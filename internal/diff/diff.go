// internal/diff/diff.go
package diff

import "strings"

// Kind tags a hunk as unchanged, added or removed.
type Kind int

const (
	Unchanged Kind = iota
	Added
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Hunk is a maximal run of consecutive lines of one kind. Text keeps the
// line terminators.
type Hunk struct {
	Kind Kind
	Text string
}

// Diff computes a minimal line edit script turning old into new. Where
// several minimal scripts exist, removals are emitted before additions so
// runs of one kind stay together. Identical inputs give a single
// Unchanged hunk.
func Diff(oldText, newText string) []Hunk {
	if oldText == newText {
		return []Hunk{{Kind: Unchanged, Text: newText}}
	}

	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	// Strip the common prefix and suffix; the LCS table only covers the middle.
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	var hunks []Hunk
	if prefix > 0 {
		hunks = push(hunks, Unchanged, strings.Join(oldLines[:prefix], ""))
	}

	a := oldLines[prefix : len(oldLines)-suffix]
	b := newLines[prefix : len(newLines)-suffix]
	lcs := computeLCS(a, b)
	width := len(b) + 1

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			hunks = push(hunks, Unchanged, a[i])
			i++
			j++
		case j == len(b) || (i < len(a) && lcs[(i+1)*width+j] >= lcs[i*width+j+1]):
			hunks = push(hunks, Removed, a[i])
			i++
		default:
			hunks = push(hunks, Added, b[j])
			j++
		}
	}

	if suffix > 0 {
		hunks = push(hunks, Unchanged, strings.Join(oldLines[len(oldLines)-suffix:], ""))
	}

	return hunks
}

// NewFile is the diff of a file with no previous version.
func NewFile(newText string) []Hunk {
	return []Hunk{{Kind: Added, Text: newText}}
}

// computeLCS fills a flattened (len(a)+1) x (len(b)+1) table where cell
// (i, j) holds the LCS length of a[i:] and b[j:].
func computeLCS(a, b []string) []int {
	width := len(b) + 1
	table := make([]int, (len(a)+1)*width)

	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i*width+j] = table[(i+1)*width+j+1] + 1
			} else {
				table[i*width+j] = max(table[(i+1)*width+j], table[i*width+j+1])
			}
		}
	}

	return table
}

func push(hunks []Hunk, kind Kind, line string) []Hunk {
	if n := len(hunks); n > 0 && hunks[n-1].Kind == kind {
		hunks[n-1].Text += line
		return hunks
	}
	return append(hunks, Hunk{Kind: kind, Text: line})
}

// splitLines cuts text after every '\n'. A final line without a
// terminator is kept as is.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
