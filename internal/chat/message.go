// Package chat parses WhatsApp plain-text chat exports (_chat.txt) into an
// ordered message stream and provides the text utilities the renderers need
// (attachment markers, URL extraction, perspective selection).
package chat

import "time"

// SystemAuthor is the pseudo-author assigned to header lines that carry a
// timestamp but no "Name:" part (encryption notices, group events).
const SystemAuthor = "System"

// Message is a single parsed chat message. Immutable once parsed.
type Message struct {
	TS     time.Time
	Author string
	Text   string
}

// IsSystem reports whether the message is a system notice rather than a
// participant message.
func (m Message) IsSystem() bool { return m.Author == SystemAuthor }
