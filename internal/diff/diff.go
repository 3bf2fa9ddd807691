// Package diff renders bounded unified diffs between two normalized snapshots.
package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultMaxLines keeps a preview comfortably under the 4000 character message cap.
	DefaultMaxLines = 40
	// DefaultContextLines matches the classic unified diff context.
	DefaultContextLines = 3
)

// Config controls the shape of the preview.
type Config struct {
	MaxLines     int `mapstructure:"max_lines"`
	ContextLines int `mapstructure:"context_lines"`
}

// Differ implements page.Differ with a hard prefix cut.
type Differ struct {
	maxLines     int
	contextLines int
}

// New builds a Differ, applying defaults for non-positive values.
func New(cfg Config) *Differ {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.ContextLines < 0 {
		cfg.ContextLines = DefaultContextLines
	}
	return &Differ{maxLines: cfg.MaxLines, contextLines: cfg.ContextLines}
}

// MaxLines reports the configured line cap.
func (d *Differ) MaxLines() int {
	return d.maxLines
}

// Diff returns the first MaxLines lines of the unified diff from previous to
// current. Identical inputs yield an empty string.
func (d *Differ) Diff(previous, current string) (string, error) {
	if previous == current {
		return "", nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(previous),
		B:        splitLines(current),
		FromFile: "old",
		ToFile:   "new",
		Context:  d.contextLines,
	})
	if err != nil {
		return "", fmt.Errorf("unified diff: %w", err)
	}
	return Truncate(text, d.maxLines), nil
}

// splitLines treats empty text as having no lines at all.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return difflib.SplitLines(text)
}

// Truncate keeps the first maxLines lines of text without trailing newlines.
func Truncate(text string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}
