package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"wet-go/internal/chat"
	"wet-go/internal/limit"
	"wet-go/internal/thumb"
)

// Markdown renders the message stream as a Markdown document with day
// headings. It shares Options with the HTML renderer; inline mode has no
// data-URL equivalent, so attachments degrade to plain references there.
type Markdown struct {
	opts Options
	cpu  *limit.Limiter
}

// NewMarkdown creates a Markdown renderer.
func NewMarkdown(opts Options, cpu *limit.Limiter) *Markdown {
	return &Markdown{opts: opts, cpu: cpu}
}

// Render writes the complete document for msgs to w. Like the HTML renderer,
// the body is chunked and parallel with order-preserving output.
func (r *Markdown) Render(ctx context.Context, msgs []chat.Message, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s\n", escapeMD(r.opts.Title)); err != nil {
		return fmt.Errorf("writing title: %w", err)
	}
	err := renderChunked(ctx, msgs, r.cpu, w, func(ctx context.Context, start int, chunk []chat.Message, buf *bytes.Buffer) error {
		prevDay := ""
		if start > 0 {
			prevDay = msgs[start-1].TS.Format("2006-01-02")
		}
		for i := range chunk {
			day := chunk[i].TS.Format("2006-01-02")
			if day != prevDay {
				fmt.Fprintf(buf, "\n## %s\n", chunk[i].TS.Format("02.01.2006"))
				prevDay = day
			}
			r.writeMessage(buf, &chunk[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rendering messages: %w", err)
	}
	_, err = fmt.Fprintf(w, "\n---\n_Exportiert aus %s am %s_\n",
		escapeMD(r.opts.SourceName), r.opts.GeneratedAt.Format("02.01.2006 15:04"))
	if err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

func (r *Markdown) writeMessage(buf *bytes.Buffer, m *chat.Message) {
	if m.IsSystem() {
		fmt.Fprintf(buf, "\n_%s_\n", escapeMD(chat.NormSpace(m.Text)))
		return
	}

	fmt.Fprintf(buf, "\n**%s — %s:**\n", m.TS.Format("15:04"), escapeMD(m.Author))

	for _, name := range chat.FindAttachments(m.Text) {
		r.writeAttachment(buf, name)
	}

	if text := chat.StripAttachmentMarkers(m.Text); text != "" {
		for _, line := range strings.Split(text, "\n") {
			buf.WriteString(linkifyMD(line))
			buf.WriteString("\n")
		}
	}
}

func (r *Markdown) writeAttachment(buf *bytes.Buffer, name string) {
	entry, ok := r.opts.Entries[name]
	if !ok || !r.opts.Sidecar {
		fmt.Fprintf(buf, "&#128206; %s\n", escapeMD(name))
		return
	}

	target := path.Join(r.opts.SidecarDir, entry.CanonicalRelPath)
	if r.opts.Thumbs != nil {
		if href, ok := r.opts.Thumbs.Href(entry, path.Join(r.opts.SidecarDir, thumb.DirName)); ok {
			fmt.Fprintf(buf, "[![%s](%s)](%s)\n", escapeMD(entry.FileName), href, target)
			return
		}
	}
	fmt.Fprintf(buf, "&#128206; [%s](%s)\n", escapeMD(entry.FileName), target)
}

// linkifyMD escapes a single line of message text and turns URLs into
// autolinks.
func linkifyMD(line string) string {
	var b strings.Builder
	for _, seg := range chat.SplitURLs(line) {
		if seg.IsURL {
			b.WriteString("<" + seg.Text + ">")
			continue
		}
		b.WriteString(escapeMD(seg.Text))
	}
	return b.String()
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	"`", "\\`",
	`#`, `\#`,
)

func escapeMD(s string) string {
	return mdEscaper.Replace(s)
}
