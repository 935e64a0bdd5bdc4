// Package diff provides content hashing and a line-oriented positional diff
// for document snapshots.
//
// The diff is a two-cursor line zip, not a longest-common-subsequence diff:
// when an insertion shifts line alignment, every shifted line is reported as a
// removed/added pair. Downstream significance classification only cares about
// "was there a non-trivial add or remove", which is robust to that
// imprecision, so the simpler O(n) walk is kept deliberately.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type Tag string

const (
	TagContext Tag = "context"
	TagAdded   Tag = "added"
	TagRemoved Tag = "removed"
)

// Line is one tagged line of diff output.
type Line struct {
	Tag  Tag
	Text string
}

// Hash returns a deterministic hex digest of the raw text. It is used purely
// for change detection, not for security.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Diff compares two texts line by line with two cursors. Equal lines are
// emitted as context; unequal pairs as removed+added; once either side is
// exhausted the remainder of the other side is emitted as pure adds or
// removes. Empty old text therefore reports every new line as added, and
// empty new text reports every old line as removed.
func Diff(oldText, newText string) []Line {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	var out []Line
	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i >= len(oldLines):
			out = append(out, Line{Tag: TagAdded, Text: newLines[j]})
			j++
		case j >= len(newLines):
			out = append(out, Line{Tag: TagRemoved, Text: oldLines[i]})
			i++
		case oldLines[i] == newLines[j]:
			out = append(out, Line{Tag: TagContext, Text: oldLines[i]})
			i++
			j++
		default:
			out = append(out, Line{Tag: TagRemoved, Text: oldLines[i]})
			out = append(out, Line{Tag: TagAdded, Text: newLines[j]})
			i++
			j++
		}
	}
	return out
}

// IsEmpty reports whether the diff contains no added or removed lines.
func IsEmpty(lines []Line) bool {
	for _, l := range lines {
		if l.Tag != TagContext {
			return false
		}
	}
	return true
}

// Render formats diff lines in unified-style prefixes for prompts and CLI
// output.
func Render(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		switch l.Tag {
		case TagAdded:
			b.WriteString("+ ")
		case TagRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
