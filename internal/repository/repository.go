package repository

import (
	"context"
	"errors"
	"time"

	"plumenote-server/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrVersionExists = errors.New("version number already taken")
	ErrConflict      = errors.New("concurrent update")
)

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	// LoadState returns the encoded CRDT state, nil when the note has none.
	LoadState(ctx context.Context, id string) ([]byte, error)
	SaveState(ctx context.Context, id string, state []byte, content *string) error
}

type NoteVersionRepository interface {
	// Create inserts v and fails with ErrVersionExists when v.Version is
	// already used for the note.
	Create(ctx context.Context, v *domain.NoteVersion) error
	FindByID(ctx context.Context, id string) (*domain.NoteVersion, error)
	// Latest returns the version with the highest number, ErrNotFound if the
	// note has none.
	Latest(ctx context.Context, noteID string) (*domain.NoteVersion, error)
	// List returns versions newest first.
	List(ctx context.Context, noteID string, limit int) ([]*domain.NoteVersion, error)
}

// RestoreTx is applied as one unit: PreVersion is refilled from the note as
// read in the same write and inserted, then the note's live title, text and
// state are overwritten.
type RestoreTx struct {
	NoteID     string
	PreVersion *domain.NoteVersion
	Title      string
	Content    *string
	State      []byte
	UpdatedAt  time.Time
}

type Restorer interface {
	Restore(ctx context.Context, tx *RestoreTx) error
}

type Store interface {
	Notes() NoteRepository
	Versions() NoteVersionRepository
	Restorer
	Close() error
}
