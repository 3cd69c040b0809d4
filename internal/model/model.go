package model

import (
	"fmt"
	"strings"
)

// Event kinds. Kind stays a string in the persisted form; these are the two
// values the toolkit itself writes.
const (
	KindFree    = "free"    // user-authored note
	KindContent = "content" // produced by the allocator, carries Meta
)

// ContentMeta is the structured payload attached to allocator-produced
// events. It records how the in-world date was derived.
type ContentMeta struct {
	Season      int    `json:"season"`
	Matchday    int    `json:"matchday"`
	ContentType string `json:"content_type"`
	Offset      int    `json:"offset"`
}

// Event is a single calendar entry. The only mutation path is delete plus
// re-add; records are never updated in place.
type Event struct {
	// ID is an opaque unique identifier assigned at creation.
	ID string `json:"id"`

	// Date is the ISO yyyy-mm-dd day the event is attached to.
	Date string `json:"date"`

	Title string `json:"title"`
	Notes string `json:"notes"`

	// Kind is KindFree or KindContent.
	Kind string `json:"kind"`

	// Meta is set only for KindContent events.
	Meta *ContentMeta `json:"meta"`
}

// UIState is the persisted last-used allocator form state. One file holds
// one record; it is overwritten wholesale on save.
type UIState struct {
	Season      int    `json:"season"`
	Matchday    int    `json:"matchday"`
	ContentType string `json:"content_type"`
	Offset      int    `json:"offset"`
	AllowFuture bool   `json:"allow_future"`
}

// ContentEventTitle builds the default title for an allocator-produced
// event, e.g. "NEWS - S1 MD5 (off 1)".
func ContentEventTitle(contentType string, season, matchday, offset int) string {
	return fmt.Sprintf("%s - S%d MD%d (off %d)", strings.ToUpper(contentType), season, matchday, offset)
}

// DefaultUIState returns the state used when no file exists or the stored
// record cannot be read.
func DefaultUIState() UIState {
	return UIState{
		Season:      1,
		Matchday:    1,
		ContentType: "news",
		Offset:      0,
		AllowFuture: false,
	}
}
