package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one logged event appended into a date-partitioned note file.
type Entry struct {
	Transcript string
	// Timestamp is a pre-rendered local time string; when empty, the current
	// time in the vault timezone is used.
	Timestamp string
	// Duration of the source recording in seconds, omitted when zero.
	Duration float64
	// DedupID suppresses duplicate deliveries of the same external event.
	DedupID string
	// LogicalDate selects the day file; zero means now. Partitioning follows
	// this date, not the wall-clock date the write happens on.
	LogicalDate time.Time
}

// AppendResult reports where an entry landed and whether it was a recognized
// duplicate (in which case nothing was written).
type AppendResult struct {
	Path      string
	Duplicate bool
}

// AppendEntry ensures the working copy is current, then appends the entry to
// the day file for its logical date, creating the file with a header when
// absent. When a dedup id is supplied and its sentinel already appears in the
// file, no write happens and the result reports Duplicate.
func (s *Synchronizer) AppendEntry(ctx context.Context, e Entry) (AppendResult, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return AppendResult{}, err
	}

	date := e.LogicalDate
	if date.IsZero() {
		date = s.now()
	}
	dateStr := date.In(s.loc).Format("2006-01-02")

	notesDir := filepath.Join(s.cfg.Path, s.cfg.NotesDir)
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return AppendResult{}, fmt.Errorf("vault: create notes dir: %w", err)
	}
	path := filepath.Join(notesDir, dateStr+".md")

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if e.DedupID != "" && strings.Contains(string(existing), sentinel(e.DedupID)) {
			return AppendResult{Path: path, Duplicate: true}, nil
		}
	case os.IsNotExist(err):
		header := fmt.Sprintf("# Voice Notes - %s\n\n", dateStr)
		if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
			return AppendResult{}, fmt.Errorf("vault: create day file: %w", err)
		}
	default:
		return AppendResult{}, fmt.Errorf("vault: read day file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return AppendResult{}, fmt.Errorf("vault: open day file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s.formatBlock(e)); err != nil {
		return AppendResult{}, fmt.Errorf("vault: append entry: %w", err)
	}

	return AppendResult{Path: path}, nil
}

// formatBlock renders one appended block: a time heading with optional
// duration, an optional dedup sentinel, the transcript, and a separator.
func (s *Synchronizer) formatBlock(e Entry) string {
	timeStr := e.Timestamp
	if timeStr == "" {
		timeStr = s.now().In(s.loc).Format("3:04 PM")
	}

	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(timeStr)
	if e.Duration > 0 {
		total := int(e.Duration + 0.5)
		b.WriteString(fmt.Sprintf(" (%d:%02d)", total/60, total%60))
	}
	b.WriteString("\n")
	if e.DedupID != "" {
		b.WriteString(sentinel(e.DedupID))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(e.Transcript)
	b.WriteString("\n\n---\n\n")
	return b.String()
}

func sentinel(dedupID string) string {
	return fmt.Sprintf("<!-- id: %s -->", dedupID)
}
