package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	appLog "zeitachse/internal/log"
	"zeitachse/internal/model"
)

// LoadEvents reads the events file at path. A missing or unreadable file is
// treated as "no data yet": these entries are low-stakes convenience data,
// so availability wins over surfacing corruption. The failure is still
// logged so the operator can notice it.
func LoadEvents(path string) []model.Event {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			appLog.Warn("events file unreadable, starting empty", "path", path, "err", err)
		}
		return []model.Event{}
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		appLog.Warn("events file malformed, starting empty", "path", path, "err", err)
		return []model.Event{}
	}

	// Backfill ids for records that were written without one.
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}
	return events
}

// SaveEvents serializes the full list and overwrites the file. The write is
// whole-file and atomic (temp file + rename); there is no append path and no
// protection against a second writer, which is acceptable for a single
// operator session.
func SaveEvents(path string, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// AddEvent appends a new record with a fresh id and trimmed text fields to
// the in-memory list and returns it. The caller persists explicitly via
// SaveEvents.
func AddEvent(events *[]model.Event, date, title, notes, kind string, meta *model.ContentMeta) model.Event {
	ev := model.Event{
		ID:    uuid.NewString(),
		Date:  date,
		Title: strings.TrimSpace(title),
		Notes: strings.TrimSpace(notes),
		Kind:  kind,
		Meta:  meta,
	}
	*events = append(*events, ev)
	return ev
}

// DeleteEvent removes the record with the given id in place. A missing id is
// a no-op, not an error.
func DeleteEvent(events *[]model.Event, id string) {
	kept := (*events)[:0]
	for _, ev := range *events {
		if ev.ID != id {
			kept = append(kept, ev)
		}
	}
	*events = kept
}

// EventsOn returns the events attached to the given ISO date. Matching is
// exact string equality; there are no range queries.
func EventsOn(events []model.Event, date string) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	return out
}

// HasEventOn reports whether any event is attached to the given ISO date.
func HasEventOn(events []model.Event, date string) bool {
	for _, ev := range events {
		if ev.Date == date {
			return true
		}
	}
	return false
}

// writeFileAtomic writes data via a temp file in the same directory followed
// by a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".zeitachse-store-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
