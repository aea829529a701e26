package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sentinel.app/relay/internal/model"
)

const (
	transcriptStampLayout = "2006-01-02 15:04:05"
	transcriptDayLayout   = "2006-01-02"
)

var transcriptSeparator = strings.Repeat("-", 20)

// FileArchiver appends exchanges to one plain-text file per UTC day under dir.
type FileArchiver struct {
	dir string
	mu  sync.Mutex
}

func NewFileArchiver(dir string) (*FileArchiver, error) {
	if dir == "" {
		return nil, fmt.Errorf("transcript directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	return &FileArchiver{dir: dir}, nil
}

// PathFor returns the file an exchange committed at event.At lands in.
func (a *FileArchiver) PathFor(event model.TranscriptEvent) string {
	return filepath.Join(a.dir, fmt.Sprintf("conversation_%s.log", event.At.UTC().Format(transcriptDayLayout)))
}

func (a *FileArchiver) Archive(ctx context.Context, event model.TranscriptEvent) error {
	entry := formatExchange(event)
	path := a.PathFor(event)

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript file: %w", err)
	}
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing transcript file: %w", err)
	}

	slog.DebugContext(ctx, "transcript archived", "path", path, "route", event.Route)
	return nil
}

func formatExchange(event model.TranscriptEvent) string {
	stamp := event.At.UTC().Format(transcriptStampLayout)
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] User: %s\n", stamp, event.User)
	fmt.Fprintf(&b, "[%s] Bot: %s\n", stamp, event.Assistant)
	b.WriteString(transcriptSeparator)
	b.WriteString("\n")
	return b.String()
}
