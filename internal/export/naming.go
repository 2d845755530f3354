// Package export orchestrates a complete export run: parse, resolve
// attachments, pre-compute thumbnails, render into a staging workspace,
// write the manifest, then publish atomically.
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"wet-go/internal/chat"
)

var unsafeStemChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

// safeStem folds anything outside the portable filename alphabet into
// underscores.
func safeStem(stem string) string {
	stem = strings.Trim(unsafeStemChars.ReplaceAllString(stem, "_"), "_")
	if stem == "" {
		return "WHATSAPP_CHAT"
	}
	return stem
}

// BaseName derives the output base name from the conversation and the render
// time: partner names, the chat period and the render timestamp, so repeated
// exports of the same chat never collide.
func BaseName(msgs []chat.Message, me string, renderTime time.Time) string {
	partners := partnerNames(msgs, me)

	var partnersPart string
	switch {
	case len(partners) == 0:
		partnersPart = "UNKNOWN"
	case len(partners) <= 3:
		partnersPart = strings.Join(partners, "+")
	default:
		partnersPart = strings.Join(partners[:3], "+") + fmt.Sprintf("+%dmore", len(partners)-3)
	}

	periodPart := "NO_MESSAGES"
	if len(msgs) > 0 {
		first, last := msgs[0].TS, msgs[0].TS
		for _, m := range msgs[1:] {
			if m.TS.Before(first) {
				first = m.TS
			}
			if m.TS.After(last) {
				last = m.TS
			}
		}
		periodPart = first.Format("2006-01-02") + "_to_" + last.Format("2006-01-02")
	}

	return strings.Join([]string{
		"WHATSAPP_CHAT",
		safeStem(partnersPart),
		periodPart,
		renderTime.Format("2006-01-02_15-04-05"),
	}, "_")
}

// Title builds the human-readable conversation title shown in rendered
// documents.
func Title(msgs []chat.Message, me string) string {
	partners := partnerNames(msgs, me)
	if len(partners) == 0 {
		return me
	}
	return me + " & " + strings.Join(partners, ", ")
}

// partnerNames returns the sorted distinct non-system authors other than me.
func partnerNames(msgs []chat.Message, me string) []string {
	meNorm := chat.NormSpace(me)
	seen := make(map[string]bool)
	var partners []string
	for _, a := range chat.Participants(msgs) {
		if chat.NormSpace(a) == meNorm || seen[a] {
			continue
		}
		seen[a] = true
		partners = append(partners, a)
	}
	sort.Strings(partners)
	return partners
}
