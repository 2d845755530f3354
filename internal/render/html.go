package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"wet-go/internal/attach"
	"wet-go/internal/chat"
	"wet-go/internal/limit"
	"wet-go/internal/thumb"
)

// Options carry everything a renderer needs beyond the message stream itself.
type Options struct {
	// Me is the author rendered on the right-hand side.
	Me string
	// Title is the human-readable conversation title.
	Title string
	// SourceName is the base name of the source transcript, shown in the
	// document footer.
	SourceName string
	// GeneratedAt is the render timestamp shown in the footer.
	GeneratedAt time.Time
	// Entries maps attachment file names to their resolved canonical entries.
	Entries map[string]attach.CanonicalEntry
	// Thumbs is the read-only thumbnail cache. May be nil when no thumbnails
	// were generated.
	Thumbs *thumb.View
	// Sidecar switches attachment rendering from inline data URLs to relative
	// references into the sidecar folder named by SidecarDir.
	Sidecar bool
	// SidecarDir is the sidecar folder name used as the href prefix, for
	// example "chat-sdc". Only meaningful when Sidecar is true.
	SidecarDir string
}

// HTML renders the message stream as a self-contained chat-bubble document.
type HTML struct {
	opts Options
	cpu  *limit.Limiter
}

// NewHTML creates an HTML renderer.
func NewHTML(opts Options, cpu *limit.Limiter) *HTML {
	return &HTML{opts: opts, cpu: cpu}
}

// Render writes the complete document for msgs to w. The body is rendered in
// parallel chunks; output is byte-identical to a sequential render.
func (h *HTML) Render(ctx context.Context, msgs []chat.Message, w io.Writer) error {
	if err := h.writeHeader(w); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	err := renderChunked(ctx, msgs, h.cpu, w, func(ctx context.Context, start int, chunk []chat.Message, buf *bytes.Buffer) error {
		prevDay := ""
		if start > 0 {
			prevDay = msgs[start-1].TS.Format("2006-01-02")
		}
		for i := range chunk {
			day := chunk[i].TS.Format("2006-01-02")
			if day != prevDay {
				h.writeDaySeparator(buf, chunk[i].TS)
				prevDay = day
			}
			h.writeMessage(buf, &chunk[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rendering messages: %w", err)
	}
	if err := h.writeFooter(w); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

func (h *HTML) writeHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>%s</style>
</head>
<body>
<div class="chat">
<div class="chat-header">%s</div>
`, html.EscapeString(h.opts.Title), stylesheet, html.EscapeString(h.opts.Title))
	return err
}

func (h *HTML) writeFooter(w io.Writer) error {
	_, err := fmt.Fprintf(w, `<div class="chat-footer">Exportiert aus %s am %s</div>
</div>
</body>
</html>
`, html.EscapeString(h.opts.SourceName), h.opts.GeneratedAt.Format("02.01.2006 15:04"))
	return err
}

func (h *HTML) writeDaySeparator(buf *bytes.Buffer, ts time.Time) {
	fmt.Fprintf(buf, `<div class="day-sep"><span>%s</span></div>`+"\n", ts.Format("02.01.2006"))
}

func (h *HTML) writeMessage(buf *bytes.Buffer, m *chat.Message) {
	if m.IsSystem() {
		fmt.Fprintf(buf, `<div class="system">%s</div>`+"\n", html.EscapeString(chat.NormSpace(m.Text)))
		return
	}

	side := "other"
	if m.Author == h.opts.Me {
		side = "me"
	}
	fmt.Fprintf(buf, `<div class="row %s"><div class="bubble">`, side)
	if side == "other" {
		fmt.Fprintf(buf, `<div class="author">%s</div>`, html.EscapeString(m.Author))
	}

	for _, name := range chat.FindAttachments(m.Text) {
		h.writeAttachment(buf, name)
	}

	text := chat.StripAttachmentMarkers(m.Text)
	if text != "" {
		buf.WriteString(`<div class="text">`)
		h.writeLinkified(buf, text)
		buf.WriteString(`</div>`)
	}

	fmt.Fprintf(buf, `<div class="ts">%s</div></div></div>`+"\n", m.TS.Format("15:04"))
}

// writeLinkified escapes text and wraps detected URLs in anchors, preserving
// line breaks.
func (h *HTML) writeLinkified(buf *bytes.Buffer, text string) {
	for _, seg := range chat.SplitURLs(text) {
		if seg.IsURL {
			esc := html.EscapeString(seg.Text)
			fmt.Fprintf(buf, `<a href="%s" target="_blank" rel="noopener">%s</a>`, esc, esc)
			continue
		}
		esc := html.EscapeString(seg.Text)
		buf.WriteString(strings.ReplaceAll(esc, "\n", "<br>"))
	}
}

// writeAttachment renders one attachment reference. With a thumbnail it
// becomes an image, either inlined as a data URL or, in sidecar mode, a link
// into the bundle folder wrapping a sibling thumbnail file. Without one it
// degrades to a file link (sidecar) or a plain placeholder (inline).
func (h *HTML) writeAttachment(buf *bytes.Buffer, name string) {
	entry, ok := h.opts.Entries[name]
	if !ok {
		fmt.Fprintf(buf, `<div class="attachment">&#128206; %s</div>`, html.EscapeString(name))
		return
	}

	if h.opts.Sidecar {
		h.writeSidecarAttachment(buf, entry)
		return
	}
	h.writeInlineAttachment(buf, entry)
}

func (h *HTML) writeSidecarAttachment(buf *bytes.Buffer, entry attach.CanonicalEntry) {
	target := path.Join(h.opts.SidecarDir, entry.CanonicalRelPath)
	if h.opts.Thumbs != nil {
		if href, ok := h.opts.Thumbs.Href(entry, path.Join(h.opts.SidecarDir, thumb.DirName)); ok {
			fmt.Fprintf(buf, `<a href="%s"><img class="thumb" src="%s" alt="%s"></a>`,
				html.EscapeString(target), html.EscapeString(href), html.EscapeString(entry.FileName))
			return
		}
	}
	fmt.Fprintf(buf, `<div class="attachment">&#128206; <a href="%s">%s</a></div>`,
		html.EscapeString(target), html.EscapeString(entry.FileName))
}

func (h *HTML) writeInlineAttachment(buf *bytes.Buffer, entry attach.CanonicalEntry) {
	if h.opts.Thumbs != nil {
		if data, ok := h.opts.Thumbs.Data(entry); ok {
			fmt.Fprintf(buf, `<img class="thumb" src="%s" alt="%s">`,
				dataURL(thumbMime(entry.FileName), data), html.EscapeString(entry.FileName))
			return
		}
	}
	// No thumbnail. Small images are still embedded from the original file;
	// everything else gets a placeholder.
	if attach.IsImage(entry.FileName) {
		if data, err := os.ReadFile(entry.SourcePath); err == nil && len(data) > 0 {
			fmt.Fprintf(buf, `<img class="thumb" src="%s" alt="%s">`,
				dataURL(attach.MimeForName(entry.FileName), data), html.EscapeString(entry.FileName))
			return
		}
	}
	fmt.Fprintf(buf, `<div class="attachment">&#128206; %s</div>`, html.EscapeString(entry.FileName))
}

// thumbMime returns the MIME type of a cached thumbnail. Image sources keep
// their own type because some renderers pass small images through unchanged;
// everything else is rendered to JPEG.
func thumbMime(fileName string) string {
	if attach.IsImage(fileName) {
		return attach.MimeForName(fileName)
	}
	return "image/jpeg"
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

const stylesheet = `
body{margin:0;background:#e5ddd5;font-family:"Segoe UI",Helvetica,Arial,sans-serif;font-size:14px}
.chat{max-width:760px;margin:0 auto;padding:8px 12px}
.chat-header{position:sticky;top:0;background:#075e54;color:#fff;padding:12px 16px;font-size:16px;font-weight:600;border-radius:0 0 6px 6px;z-index:1}
.chat-footer{text-align:center;color:#667781;font-size:11px;margin:16px 0}
.day-sep{text-align:center;margin:12px 0}
.day-sep span{background:#d4e2ea;color:#54656f;font-size:12px;padding:4px 10px;border-radius:8px}
.system{text-align:center;margin:8px auto;max-width:80%;background:#d4e2ea;color:#54656f;font-size:12px;padding:5px 12px;border-radius:8px;width:fit-content}
.row{display:flex;margin:2px 0}
.row.me{justify-content:flex-end}
.bubble{max-width:70%;padding:6px 9px;border-radius:8px;background:#fff;box-shadow:0 1px .5px rgba(0,0,0,.13)}
.row.me .bubble{background:#d9fdd3}
.author{font-size:12px;font-weight:600;color:#1f7aec;margin-bottom:2px}
.text{white-space:pre-wrap;word-wrap:break-word}
.text a{color:#027eb5}
.ts{font-size:11px;color:#667781;text-align:right;margin-top:2px}
.thumb{max-width:100%;max-height:320px;border-radius:6px;display:block;margin:2px 0}
.attachment{font-size:13px;color:#54656f;margin:2px 0}
`
