// Package extract scans raw message text for bare URLs. It is a pure text
// scan: no network calls, total on malformed input, and idempotent.
package extract

import (
	"regexp"
	"strings"

	"embedfix/internal/domain"
)

var (
	spoilerPattern = regexp.MustCompile(`\|\|(https?://[^\s|]+)\|\|`)
	regularPattern = regexp.MustCompile(`(https?://\S+)`)
)

// URLs returns the URLs found in text in order of appearance. Spoilered URLs
// (wrapped in ||...||) are extracted first and flagged; their markers are
// stripped before the second pass picks up the remaining bare links.
//
// A URL preceded by a literal "$" or wrapped in <...> no-embed brackets is
// skipped, which is how users paste a link without triggering the bot.
func URLs(text string) []domain.ExtractedURL {
	var urls []domain.ExtractedURL

	for _, m := range spoilerPattern.FindAllStringSubmatch(text, -1) {
		urls = append(urls, domain.ExtractedURL{Raw: m[1], Spoiler: true})
	}

	remaining := spoilerPattern.ReplaceAllString(text, "")
	for _, m := range regularPattern.FindAllStringSubmatchIndex(remaining, -1) {
		start, end := m[2], m[3]
		if escaped(remaining, start) {
			continue
		}
		raw := strings.TrimRight(remaining[start:end], ">")
		urls = append(urls, domain.ExtractedURL{Raw: raw})
	}

	return urls
}

// escaped reports whether the URL starting at index i is preceded by a "$"
// escape marker or sits inside angle-bracket no-embed syntax.
func escaped(text string, i int) bool {
	if i == 0 {
		return false
	}
	switch text[i-1] {
	case '$', '<':
		return true
	}
	return false
}
