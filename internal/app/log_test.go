package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestWetHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "export-123",
			level:   slog.LevelInfo,
			message: "chat parsed",
			want:    "2024-06-15T14:30:45Z\tINFO\texport-123\tchat parsed\n",
		},
		{
			name:    "debug level",
			opID:    "export-456",
			level:   slog.LevelDebug,
			message: "staging workspace created",
			want:    "2024-06-15T14:30:45Z\tDEBUG\texport-456\tstaging workspace created\n",
		},
		{
			name:    "with record attrs",
			opID:    "export-789",
			level:   slog.LevelInfo,
			message: "artifact published",
			attrs:   []slog.Attr{slog.String("path", "/out/chat.html"), slog.Int("messages", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\texport-789\tartifact published\tpath=/out/chat.html\tmessages=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &wetHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestWetHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &wetHandler{w: &buf, opID: "export-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "staging")}).(*wetHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "publish", 0)
	r.AddAttrs(slog.String("artifact", "html"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=staging") {
		t.Errorf("expected pre-set attr component=staging, got: %q", got)
	}
	if !strings.Contains(got, "artifact=html") {
		t.Errorf("expected record attr artifact=html, got: %q", got)
	}
}

func TestWetHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &wetHandler{w: &buf, opID: "export-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*wetHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestWetHandler_Enabled(t *testing.T) {
	h := &wetHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
