package domain

type SnapshotReason string

const (
	SnapshotCreated      SnapshotReason = "created"
	SnapshotNoChange     SnapshotReason = "no_change"
	SnapshotNoteNotFound SnapshotReason = "note_not_found"
)

type SnapshotResult struct {
	Created bool           `json:"created"`
	Reason  SnapshotReason `json:"reason"`
}

type SnapshotRequest struct {
	NoteID string `json:"noteId" validate:"required,uuid"`
}

type RestoreRequest struct {
	NoteID    string `json:"-" validate:"required,uuid"`
	VersionID string `json:"versionId" validate:"required,uuid"`
}

// RestoreResult is returned by a restore. UndoVersionID names the version
// holding the content the note had right before the restore.
type RestoreResult struct {
	RestoredFromVersion int64  `json:"restoredFromVersion"`
	UndoVersionID       string `json:"undoVersionId"`
}
