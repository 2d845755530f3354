package chat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WhatsApp emits three header shapes depending on platform and locale:
//
//	2019-04-13 18:59:06 Carolin: Text
//	13.04.19, 18:59 - Carolin: Text        (seconds optional, 2- or 4-digit year)
//	[13.04.2019, 18:59:06] Carolin: Text
//
// Media messages sometimes emit "... Name:" with the attachment marker on the
// following line, so an empty text after the colon must be accepted.
var (
	patISO     = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})\s+([^:]+?):\s*(.*)$`)
	patDE      = regexp.MustCompile(`^(\d{1,2}\.\d{1,2}\.\d{2,4}),\s+(\d{1,2}:\d{2})(?::(\d{2}))?\s+-\s+([^:]+?):\s*(.*)$`)
	patBracket = regexp.MustCompile(`^\[(\d{1,2}\.\d{1,2}\.\d{2,4}),\s+(\d{1,2}:\d{2})(?::(\d{2}))?\]\s+([^:]+?):\s*(.*)$`)

	// Same shapes without an author part: system notices.
	patISOSys     = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})(?:\s+[-–]\s+|\s+)(.*)$`)
	patDESys      = regexp.MustCompile(`^(\d{1,2}\.\d{1,2}\.\d{2,4}),\s+(\d{1,2}:\d{2})(?::(\d{2}))?\s+[-–]\s+(.*)$`)
	patBracketSys = regexp.MustCompile(`^\[(\d{1,2}\.\d{1,2}\.\d{2,4}),\s+(\d{1,2}:\d{2})(?::(\d{2}))?\]\s+(.*)$`)
)

// control characters iOS exports sprinkle into lines; they break the header
// regexes and must be stripped before matching.
var controlReplacer = strings.NewReplacer(
	"\uFEFF", "", // byte order mark
	"‎", "", // left-to-right mark
	"‏", "", // right-to-left mark
	"‪", "", // left-to-right embedding
	"‫", "", // right-to-left embedding
	"‬", "", // pop directional formatting
)

// NormSpace collapses whitespace, strips NBSP and direction marks.
func NormSpace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = controlReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseFile reads and parses a chat export file.
func ParseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chat file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an ordered message stream from r. Lines that match no header
// shape are continuation lines and are appended to the preceding message;
// stray continuation lines before the first header are dropped.
func Parse(r io.Reader) ([]Message, error) {
	var msgs []Message
	var last *Message

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\n")
		if line != "" {
			line = controlReplacer.Replace(line)
		}
		if line == "" {
			// Keep blank lines as part of a multi-line message body.
			if last != nil {
				last.Text += "\n"
			}
			continue
		}

		if msg, ok := parseHeader(line); ok {
			msgs = append(msgs, msg)
			last = &msgs[len(msgs)-1]
			continue
		}
		if last != nil {
			last.Text += "\n" + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading chat file: %w", err)
	}
	return msgs, nil
}

func parseHeader(line string) (Message, bool) {
	if m := patISO.FindStringSubmatch(line); m != nil {
		ts, err := time.Parse("2006-01-02 15:04:05", m[1]+" "+m[2])
		if err == nil {
			return Message{TS: ts, Author: NormSpace(m[3]), Text: m[4]}, true
		}
	}
	if m := patDE.FindStringSubmatch(line); m != nil {
		if ts, err := parseGermanTS(m[1], m[2], m[3]); err == nil {
			return Message{TS: ts, Author: NormSpace(m[4]), Text: m[5]}, true
		}
	}
	if m := patBracket.FindStringSubmatch(line); m != nil {
		if ts, err := parseGermanTS(m[1], m[2], m[3]); err == nil {
			return Message{TS: ts, Author: NormSpace(m[4]), Text: m[5]}, true
		}
	}

	// System notices: timestamp but no author.
	if m := patISOSys.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse("2006-01-02 15:04:05", m[1]+" "+m[2]); err == nil {
			return Message{TS: ts, Author: SystemAuthor, Text: m[3]}, true
		}
	}
	if m := patDESys.FindStringSubmatch(line); m != nil {
		if ts, err := parseGermanTS(m[1], m[2], m[3]); err == nil {
			return Message{TS: ts, Author: SystemAuthor, Text: m[4]}, true
		}
	}
	if m := patBracketSys.FindStringSubmatch(line); m != nil {
		if ts, err := parseGermanTS(m[1], m[2], m[3]); err == nil {
			return Message{TS: ts, Author: SystemAuthor, Text: m[4]}, true
		}
	}
	return Message{}, false
}

// parseGermanTS parses "13.04.19" / "13.04.2019" dates with an "18:59" time
// and optional seconds. Two-digit years map to 2000-2099.
func parseGermanTS(date, hm, sec string) (time.Time, error) {
	dp := strings.Split(date, ".")
	if len(dp) != 3 {
		return time.Time{}, fmt.Errorf("malformed date %q", date)
	}
	day, err := strconv.Atoi(dp[0])
	if err != nil {
		return time.Time{}, err
	}
	month, err := strconv.Atoi(dp[1])
	if err != nil {
		return time.Time{}, err
	}
	year, err := strconv.Atoi(dp[2])
	if err != nil {
		return time.Time{}, err
	}
	if year < 100 {
		year += 2000
	}

	tp := strings.Split(hm, ":")
	if len(tp) != 2 {
		return time.Time{}, fmt.Errorf("malformed time %q", hm)
	}
	hour, err := strconv.Atoi(tp[0])
	if err != nil {
		return time.Time{}, err
	}
	min, err := strconv.Atoi(tp[1])
	if err != nil {
		return time.Time{}, err
	}
	s := 0
	if sec != "" {
		if s, err = strconv.Atoi(sec); err != nil {
			return time.Time{}, err
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || s > 59 {
		return time.Time{}, fmt.Errorf("out-of-range timestamp %q %q", date, hm)
	}
	return time.Date(year, time.Month(month), day, hour, min, s, 0, time.UTC), nil
}
