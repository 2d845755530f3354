package chat

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Pseudo-authors that sometimes show up in the author position of exports
// and must never be offered as the "me" perspective.
var systemMarkers = map[string]bool{
	"system":   true,
	"whatsapp": true,
	"messages to this chat are now secured":                true,
	"nachrichten und anrufe sind ende-zu-ende-verschlüsselt": true,
}

// Participants returns the distinct non-system authors of msgs in order of
// first appearance.
func Participants(msgs []Message) []string {
	var authors []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		a := NormSpace(m.Author)
		if a == "" || seen[a] {
			continue
		}
		if systemMarkers[strings.ToLower(a)] {
			continue
		}
		seen[a] = true
		authors = append(authors, a)
	}
	return authors
}

// ChooseMe selects the "me" perspective from the author list. When
// interactive is false the first author wins. Otherwise the user is shown a
// numbered list on out and may answer with a number or a name read from in;
// an empty answer or EOF falls back to the first author.
func ChooseMe(authors []string, in io.Reader, out io.Writer, interactive bool) string {
	if len(authors) == 0 {
		return "Ich"
	}
	if !interactive {
		return authors[0]
	}

	fmt.Fprintf(out, "\nChoose the \"me\" perspective:\n\n")
	for i, a := range authors {
		fmt.Fprintf(out, "  %d) %s\n", i+1, a)
	}

	byNumber := make(map[string]string, len(authors))
	byName := make(map[string]string, len(authors))
	for i, a := range authors {
		byNumber[fmt.Sprintf("%d", i+1)] = a
		byName[strings.ToLower(a)] = a
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Number or name: ")
		if !sc.Scan() {
			return authors[0]
		}
		raw := NormSpace(sc.Text())
		if raw == "" {
			return authors[0]
		}
		if name, ok := byNumber[strings.TrimRight(raw, ").")]; ok {
			return name
		}
		if name, ok := byName[strings.ToLower(raw)]; ok {
			return name
		}
		fmt.Fprintln(out, "Please answer with one of the listed numbers or names.")
	}
}
