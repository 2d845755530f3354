package chat

import (
	"regexp"
	"strings"
)

// attachRe matches the attachment marker WhatsApp embeds in message bodies:
// "<Anhang: IMG-1234.jpg>" (the marker keyword is locale-fixed in German
// exports regardless of device language).
var attachRe = regexp.MustCompile(`(?i)<\s*Anhang:\s*([^>]+?)\s*>`)

// FindAttachments returns the attachment filenames referenced in text,
// in order of appearance.
func FindAttachments(text string) []string {
	var names []string
	for _, m := range attachRe.FindAllStringSubmatch(text, -1) {
		names = append(names, strings.TrimSpace(m[1]))
	}
	return names
}

var hspaceRe = regexp.MustCompile(`[ \t]{2,}`)

// StripAttachmentMarkers removes all attachment markers from text and
// collapses the horizontal gap each removal leaves behind. Newlines are
// preserved.
func StripAttachmentMarkers(text string) string {
	stripped := attachRe.ReplaceAllString(text, "")
	return strings.TrimSpace(hspaceRe.ReplaceAllString(stripped, " "))
}

var urlRe = regexp.MustCompile(`(?i)(https?://[^\s<>\]]+)`)

// Segment is a run of message text, either plain text or a URL.
type Segment struct {
	Text  string
	IsURL bool
}

// SplitURLs splits text into alternating plain and URL segments. Trailing
// punctuation after a URL is returned as plain text, matching ExtractURLs.
func SplitURLs(text string) []Segment {
	var segs []Segment
	last := 0
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		u := strings.TrimRight(text[loc[0]:loc[1]], `).,;:!?]"'`)
		end := loc[0] + len(u)
		if loc[0] > last {
			segs = append(segs, Segment{Text: text[last:loc[0]]})
		}
		if u != "" {
			segs = append(segs, Segment{Text: u, IsURL: true})
		}
		last = end
	}
	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs
}

// ExtractURLs returns the URLs found in text with trailing punctuation
// trimmed, deduplicated with stable order.
func ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range urlRe.FindAllStringSubmatch(text, -1) {
		u := strings.TrimRight(m[1], `).,;:!?]"'`)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
