package client

import "time"

// Snapshot reasons reported by the server.
const (
	ReasonCreated      = "created"
	ReasonNoChange     = "no_change"
	ReasonNoteNotFound = "note_not_found"
)

type SnapshotResult struct {
	Created bool   `json:"created"`
	Reason  string `json:"reason"`
}

// RestoreResult names the version the note was restored from and the
// version holding the text it had right before.
type RestoreResult struct {
	RestoredFromVersion int64  `json:"restoredFromVersion"`
	UndoVersionID       string `json:"undoVersionId"`
}

type VersionSummary struct {
	ID          string    `json:"id"`
	Version     int64     `json:"version"`
	Title       string    `json:"title"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Version struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"note_id"`
	Version     int64     `json:"version"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}
