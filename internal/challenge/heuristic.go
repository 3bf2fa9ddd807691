// Package challenge recognizes anti-bot interstitials served in place of the
// watched page, so the fetcher can retry with a real browser.
package challenge

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/page"
)

// DefaultBodyLengthThreshold bounds the script-density rule to small bodies.
const DefaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based challenge checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var bodyMarkers = [][]byte{
	[]byte("<title>just a moment...</title>"),
	[]byte("cf_chl_opt"),
	[]byte("/cdn-cgi/challenge-platform/"),
	[]byte("cf-browser-verification"),
	[]byte("attention required! | cloudflare"),
	[]byte("ddos-guard"),
	[]byte("checking your browser before accessing"),
	[]byte("_incapsula_resource"),
	[]byte("px-captcha"),
}

// IsChallengeStatus reports whether a status code is one protection layers
// answer with instead of the page.
func IsChallengeStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsChallenge reports whether resp looks like an interstitial.
func (h *Heuristic) IsChallenge(resp page.FetchResponse) bool {
	if resp.Headers != nil && strings.EqualFold(resp.Headers.Get("cf-mitigated"), "challenge") {
		return true
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range bodyMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower)
}

func scriptDensityHigh(lower []byte) bool {
	doc := string(lower)
	total := len(doc)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(doc[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(doc[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if relativeEnd := strings.Index(doc[contentStart:], closeTag); relativeEnd != -1 {
			next = contentStart + relativeEnd + len(closeTag)
		}
		scriptCoverage += next - start
		searchPos = next
	}

	return scriptCoverage*100/total >= 50
}
