package domain

import (
	"time"

	"plumenote-server/pkg/hash"
)

// NoteVersion is an immutable snapshot of a note's text. Version numbers are
// strictly increasing per note and never reused.
type NoteVersion struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"note_id"`
	Version     int64     `json:"version"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type NoteVersionSummary struct {
	ID          string    `json:"id"`
	Version     int64     `json:"version"`
	Title       string    `json:"title"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (v *NoteVersion) Summary() NoteVersionSummary {
	return NoteVersionSummary{
		ID:          v.ID,
		Version:     v.Version,
		Title:       v.Title,
		CreatedByID: v.CreatedByID,
		CreatedAt:   v.CreatedAt,
	}
}

// Capture sets v's title and text from note as it is now.
func (v *NoteVersion) Capture(note *Note) {
	v.Title = note.Title
	v.Content = note.PlainText()
	v.ContentHash = hash.Content(v.Content)
}
