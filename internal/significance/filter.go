// Package significance classifies diff lines as trivial housekeeping or
// meaningful document changes. A trivial-only diff must never trigger
// planning, so this filter is the cost gate in front of the oracle.
package significance

import (
	"regexp"
	"strings"

	"prdsync.app/prdsync/internal/diff"
)

// DefaultMinLineLength suppresses single-character noise (stray punctuation)
// from triggering a full planning pass. Trimmed added/removed lines at or
// below this length never establish significance on their own.
const DefaultMinLineLength = 3

// trivialPatterns are checked in order; the first match wins per line.
var trivialPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"version number", regexp.MustCompile(`(?i)^\s*v?ersion[:\s]+v?\d+(\.\d+)*\s*$|^\s*v\d+\.\d+(\.\d+)?\s*$`)},
	{"iso date", regexp.MustCompile(`^\s*\d{4}-\d{2}-\d{2}\s*$|(?i)^\s*(date|updated)[:\s]+\d{4}-\d{2}-\d{2}\s*$`)},
	{"last updated header", regexp.MustCompile(`(?i)^\s*#*\s*last\s+updated\b.*$`)},
	{"changelog header", regexp.MustCompile(`(?i)^\s*#+\s*(changelog|change\s+log|revision\s+history|document\s+history)\s*$`)},
	{"version table row", regexp.MustCompile(`^\s*\|\s*v?\d+(\.\d+)*\s*\|.*\|\s*$`)},
}

// Result is the classification verdict for one diff.
type Result struct {
	Significant bool
	Filtered    []diff.Line
	Trivial     []string
}

// Classifier applies the trivial-change rules with a configurable minimum
// trimmed length for significance.
type Classifier struct {
	minLineLength int
}

func New(minLineLength int) *Classifier {
	if minLineLength <= 0 {
		minLineLength = DefaultMinLineLength
	}
	return &Classifier{minLineLength: minLineLength}
}

// Classify walks the diff once. Blank added/removed lines are dropped
// entirely; trivial-pattern matches are recorded but excluded from the
// filtered diff; context lines pass through without ever establishing
// significance. The diff is significant iff at least one non-trivial
// added/removed line longer than the threshold remains.
func (c *Classifier) Classify(lines []diff.Line) Result {
	result := Result{}

	for _, line := range lines {
		if line.Tag == diff.TagContext {
			result.Filtered = append(result.Filtered, line)
			continue
		}

		trimmed := strings.TrimSpace(line.Text)
		if trimmed == "" {
			continue
		}

		if name, trivial := c.matchTrivial(trimmed); trivial {
			result.Trivial = append(result.Trivial, name+": "+trimmed)
			continue
		}

		result.Filtered = append(result.Filtered, line)
		if len(trimmed) > c.minLineLength {
			result.Significant = true
		}
	}

	return result
}

func (c *Classifier) matchTrivial(line string) (string, bool) {
	for _, p := range trivialPatterns {
		if p.re.MatchString(line) {
			return p.name, true
		}
	}
	return "", false
}
