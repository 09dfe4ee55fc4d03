package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

const ExportVersion = "1.0"

// Document is the export/import file format.
type Document struct {
	Version    string                  `json:"version"`
	ExportedAt time.Time               `json:"exportedAt"`
	Count      int                     `json:"count"`
	Entries    []reminder.HistoryEntry `json:"entries"`
}

type ImportMode int

const (
	// ImportMerge keeps existing entries and skips incoming ids already present.
	ImportMerge ImportMode = iota
	// ImportReplace discards the current ledger first.
	ImportReplace
)

func ParseImportMode(s string) (ImportMode, error) {
	switch s {
	case "", "merge":
		return ImportMerge, nil
	case "replace":
		return ImportReplace, nil
	}
	return 0, fmt.Errorf("unknown import mode %q", s)
}

// Export writes the entries matching q (all entries when q is nil).
func (l *Ledger) Export(w io.Writer, q *Query) error {
	entries := l.Entries()
	if q != nil {
		entries = Filter(entries, *q, l.d.Clock.Now(), l.cfg.Location)
	}
	doc := Document{
		Version:    ExportVersion,
		ExportedAt: l.d.Clock.Now().UTC(),
		Count:      len(entries),
		Entries:    entries,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("history export: %w", err)
	}
	return nil
}

// Import reads a Document and applies it. It returns the number of entries
// added. The cap is enforced and the result persisted.
func (l *Ledger) Import(ctx context.Context, r io.Reader, mode ImportMode) (int, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("history import: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if mode == ImportReplace {
		l.entries = nil
	}
	seen := make(map[string]struct{}, len(l.entries))
	for _, r := range l.entries {
		seen[r.e.ID] = struct{}{}
	}
	added := 0
	for _, e := range doc.Entries {
		if e.ID == "" || !e.Action.Valid() {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		l.seq++
		l.entries = append(l.entries, record{e: e.Clone(), seq: l.seq})
		added++
	}
	sortRecords(l.entries)
	l.capLocked()
	l.d.Log.Info("history imported", logx.Int("added", added), logx.Int("total", len(l.entries)))
	return added, l.persistLocked(ctx)
}
