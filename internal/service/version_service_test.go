package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"plumenote-server/internal/crdt"
	"plumenote-server/internal/domain"
	"plumenote-server/internal/extract"
	"plumenote-server/internal/repository"
	"plumenote-server/pkg/apperror"
	"plumenote-server/pkg/hash"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type versionFixture struct {
	snapshots *SnapshotService
	service   *VersionService
	notes     *mockNoteRepo
	versions  *mockVersionRepo
	restorer  *mockRestorer
	noteID    string
}

func newVersionFixture(t *testing.T, content string) *versionFixture {
	t.Helper()
	notes := newMockNoteRepo()
	versions := &mockVersionRepo{}
	restorer := &mockRestorer{notes: notes, versions: versions}
	noteID := uuid.New().String()
	notes.notes[noteID] = &domain.Note{ID: noteID, OwnerID: "user1", Title: "Plan", Content: &content}

	now := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	snapshots := NewSnapshotService(notes, versions, OwnerAuthorizer{}, zap.NewNop())
	snapshots.now = now
	svc := NewVersionService(notes, versions, restorer, OwnerAuthorizer{}, zap.NewNop())
	svc.now = now

	return &versionFixture{
		snapshots: snapshots,
		service:   svc,
		notes:     notes,
		versions:  versions,
		restorer:  restorer,
		noteID:    noteID,
	}
}

func (f *versionFixture) versionNumbered(t *testing.T, number int64) *domain.NoteVersion {
	t.Helper()
	for _, v := range f.versions.versions {
		if v.NoteID == f.noteID && v.Version == number {
			return v
		}
	}
	t.Fatalf("version %d not found", number)
	return nil
}

func TestVersionService_RestoreAndUndo(t *testing.T) {
	f := newVersionFixture(t, "Hello")
	ctx := context.Background()

	if r, _ := f.snapshots.CreateSnapshot(ctx, f.noteID, "user1"); !r.Created {
		t.Fatalf("expected version 1, got %+v", r)
	}
	f.notes.setContent(f.noteID, "Hello World")
	if r, _ := f.snapshots.CreateSnapshot(ctx, f.noteID, "user1"); !r.Created {
		t.Fatalf("expected version 2, got %+v", r)
	}

	v1 := f.versionNumbered(t, 1)
	result, err := f.service.Restore(ctx, "user1", f.noteID, v1.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.RestoredFromVersion != 1 {
		t.Errorf("expected restored from 1, got %d", result.RestoredFromVersion)
	}

	note, _ := f.notes.FindByID(ctx, f.noteID)
	if note.PlainText() != "Hello" {
		t.Errorf("expected content Hello, got %q", note.PlainText())
	}

	v3 := f.versionNumbered(t, 3)
	if v3.Content != "Hello World" {
		t.Errorf("expected version 3 to hold pre-restore text, got %q", v3.Content)
	}
	if result.UndoVersionID != v3.ID {
		t.Errorf("expected undo version %s, got %s", v3.ID, result.UndoVersionID)
	}

	undo, err := f.service.Restore(ctx, "user1", f.noteID, result.UndoVersionID)
	if err != nil {
		t.Fatalf("expected no error on undo, got %v", err)
	}
	if undo.RestoredFromVersion != 3 {
		t.Errorf("expected undo from 3, got %d", undo.RestoredFromVersion)
	}

	note, _ = f.notes.FindByID(ctx, f.noteID)
	if note.PlainText() != "Hello World" {
		t.Errorf("expected content Hello World after undo, got %q", note.PlainText())
	}
	if v4 := f.versionNumbered(t, 4); v4.Content != "Hello" {
		t.Errorf("expected version 4 to hold pre-undo text, got %q", v4.Content)
	}
}

func TestVersionService_RestoreRewritesState(t *testing.T) {
	f := newVersionFixture(t, "first\nsecond")
	ctx := context.Background()

	f.snapshots.CreateSnapshot(ctx, f.noteID, "")
	f.notes.setContent(f.noteID, "changed")

	v1 := f.versionNumbered(t, 1)
	if _, err := f.service.Restore(ctx, "user1", f.noteID, v1.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	text, err := extract.Text(f.restorer.last.State)
	if err != nil {
		t.Fatalf("restored state is not decodable: %v", err)
	}
	if text == nil || *text != "first\nsecond" {
		t.Errorf("expected restored state to carry restored text, got %v", text)
	}
}

func TestVersionService_RestoreAlwaysCapturesPreState(t *testing.T) {
	f := newVersionFixture(t, "same")
	ctx := context.Background()

	f.snapshots.CreateSnapshot(ctx, f.noteID, "")
	v1 := f.versionNumbered(t, 1)

	if _, err := f.service.Restore(ctx, "user1", f.noteID, v1.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v2 := f.versionNumbered(t, 2); v2.Content != "same" {
		t.Errorf("expected pre-restore version even without changes, got %q", v2.Content)
	}
}

func TestVersionService_RestoreFailureLeavesNoteUntouched(t *testing.T) {
	f := newVersionFixture(t, "Hello")
	ctx := context.Background()

	f.snapshots.CreateSnapshot(ctx, f.noteID, "")
	f.notes.setContent(f.noteID, "Hello World")
	f.restorer.err = errors.New("connection reset")

	v1 := f.versionNumbered(t, 1)
	_, err := f.service.Restore(ctx, "user1", f.noteID, v1.ID)
	if !apperror.IsTransientIO(err) {
		t.Fatalf("expected transient error, got %v", err)
	}

	note, _ := f.notes.FindByID(ctx, f.noteID)
	if note.PlainText() != "Hello World" {
		t.Errorf("expected content untouched, got %q", note.PlainText())
	}
	if len(f.versions.versions) != 1 {
		t.Errorf("expected no new version, got %d", len(f.versions.versions))
	}
}

// editingRestorer commits a live edit right before the restore write runs.
type editingRestorer struct {
	repository.Restorer
	edit func(ctx context.Context)
}

func (r *editingRestorer) Restore(ctx context.Context, tx *repository.RestoreTx) error {
	r.edit(ctx)
	return r.Restorer.Restore(ctx, tx)
}

func TestVersionService_RestoreCapturesEditSavedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	store, err := repository.OpenBadger(repository.BadgerConfig{InMemory: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	content := "Hello"
	note := &domain.Note{ID: uuid.New().String(), OwnerID: "user1", Title: "Plan", Content: &content}
	if err := store.Notes().Create(ctx, note); err != nil {
		t.Fatalf("create note: %v", err)
	}

	gateway := NewGateway(store.Notes(), zap.NewNop())
	snapshots := NewSnapshotService(store.Notes(), store.Versions(), OwnerAuthorizer{}, zap.NewNop())
	if r, err := snapshots.CreateSnapshot(ctx, note.ID, "user1"); err != nil || !r.Created {
		t.Fatalf("expected version 1, got %+v, %v", r, err)
	}
	v1, err := store.Versions().Latest(ctx, note.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}

	typed, _ := crdt.FromText("Hello World, typed just now")
	restorer := &editingRestorer{
		Restorer: store,
		edit: func(ctx context.Context) {
			gateway.Store(ctx, SessionIDForNote(note.ID), typed)
		},
	}
	svc := NewVersionService(store.Notes(), store.Versions(), restorer, OwnerAuthorizer{}, zap.NewNop())

	result, err := svc.Restore(ctx, "user1", note.ID, v1.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	undo, err := store.Versions().FindByID(ctx, result.UndoVersionID)
	if err != nil {
		t.Fatalf("undo version: %v", err)
	}
	if undo.Content != "Hello World, typed just now" {
		t.Errorf("expected undo target to hold the saved edit, got %q", undo.Content)
	}
	if !hash.Equal(undo.ContentHash, undo.Content) {
		t.Errorf("expected content hash to match captured text")
	}

	if _, err := svc.Restore(ctx, "user1", note.ID, result.UndoVersionID); err != nil {
		t.Fatalf("undo: %v", err)
	}
	current, _ := store.Notes().FindByID(ctx, note.ID)
	if current.PlainText() != "Hello World, typed just now" {
		t.Errorf("expected undo to bring the edit back, got %q", current.PlainText())
	}
}

func TestVersionService_RestoreErrors(t *testing.T) {
	f := newVersionFixture(t, "Hello")
	ctx := context.Background()
	f.snapshots.CreateSnapshot(ctx, f.noteID, "")
	v1 := f.versionNumbered(t, 1)

	other := newVersionFixture(t, "Other")
	other.snapshots.CreateSnapshot(ctx, other.noteID, "")
	foreign := other.versionNumbered(t, 1)
	f.versions.versions = append(f.versions.versions, foreign)

	tests := []struct {
		name      string
		userID    string
		noteID    string
		versionID string
		check     func(error) bool
	}{
		{"missing ids", "user1", "", "", apperror.IsValidation},
		{"unknown version", "user1", f.noteID, uuid.New().String(), apperror.IsNotFound},
		{"version of another note", "user1", f.noteID, foreign.ID, apperror.IsNotFound},
		{"not owner", "user2", f.noteID, v1.ID, apperror.IsForbidden},
		{"not owner with unknown version", "user2", f.noteID, uuid.New().String(), apperror.IsForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Restore(ctx, tt.userID, tt.noteID, tt.versionID)
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestVersionService_ListAndGet(t *testing.T) {
	f := newVersionFixture(t, "a")
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		f.notes.setContent(f.noteID, text)
		f.snapshots.CreateSnapshot(ctx, f.noteID, "")
	}

	list, err := f.service.List(ctx, "user1", f.noteID, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(list) != 2 || list[0].Version != 3 || list[1].Version != 2 {
		t.Errorf("expected versions [3 2], got %+v", list)
	}

	v2 := f.versionNumbered(t, 2)
	got, err := f.service.Get(ctx, "user1", f.noteID, v2.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Content != "b" {
		t.Errorf("expected content b, got %q", got.Content)
	}

	if _, err := f.service.List(ctx, "user2", f.noteID, 10); !apperror.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestVersionService_OnRestoreNotified(t *testing.T) {
	f := newVersionFixture(t, "Hello")
	ctx := context.Background()
	f.snapshots.CreateSnapshot(ctx, f.noteID, "")

	var gotNote string
	var gotState []byte
	f.service.OnRestore(func(noteID string, state []byte) {
		gotNote = noteID
		gotState = state
	})

	v1 := f.versionNumbered(t, 1)
	if _, err := f.service.Restore(ctx, "user1", f.noteID, v1.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotNote != f.noteID || len(gotState) == 0 {
		t.Errorf("expected restore notification for %s, got %q with %d bytes", f.noteID, gotNote, len(gotState))
	}
}
