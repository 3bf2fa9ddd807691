// Package normalize strips volatile markup from a page so that unrelated
// renders of the same content compare equal.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagewatch/internal/page"
)

const (
	// DefaultCountdownID is the element id of the countdown widget on the watched page.
	DefaultCountdownID = "intelligent-existence-products-countdown"
	// DefaultFooterPattern matches the W3 Total Cache footer comment through its terminator.
	DefaultFooterPattern = `<!--\s*Performance optimized by W3 Total Cache.*?-->`
)

// noiseSelector lists elements that never carry comparable content.
const noiseSelector = "script, style, noscript"

// Config lists the volatile markers to strip.
type Config struct {
	// VolatileIDs are element ids removed with their whole subtree.
	VolatileIDs []string `mapstructure:"volatile_ids"`
	// FooterPatterns are matched against the serialized text in dot-all mode.
	FooterPatterns []string `mapstructure:"footer_patterns"`
}

// DefaultConfig returns the markers known to vary on the watched page.
func DefaultConfig() Config {
	return Config{
		VolatileIDs:    []string{DefaultCountdownID},
		FooterPatterns: []string{DefaultFooterPattern},
	}
}

// Normalizer implements page.Normalizer.
type Normalizer struct {
	volatileIDs []string
	footers     []*regexp.Regexp
}

// New compiles the configured patterns.
func New(cfg Config) (*Normalizer, error) {
	footers := make([]*regexp.Regexp, 0, len(cfg.FooterPatterns))
	for _, pattern := range cfg.FooterPatterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile("(?s)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile footer pattern %q: %w", pattern, err)
		}
		footers = append(footers, re)
	}
	ids := make([]string, 0, len(cfg.VolatileIDs))
	for _, id := range cfg.VolatileIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &Normalizer{volatileIDs: ids, footers: footers}, nil
}

// Normalize parses raw HTML, removes volatile elements, pretty-prints the tree
// and strips dynamic footer comments. Empty input is an error.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", page.ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return "", page.ErrEmptyDocument
	}

	for _, id := range n.volatileIDs {
		removeByID(doc, id)
	}
	doc.Find(noiseSelector).Remove()
	doc.Find("meta").Remove()

	cleaned := prettify(doc.Nodes[0])
	for _, re := range n.footers {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return dropBlankLines(cleaned), nil
}

func removeByID(doc *goquery.Document, id string) {
	doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		got, _ := s.Attr("id")
		return got == id
	}).Remove()
}

func dropBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
