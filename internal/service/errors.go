package service

import (
	"context"
	"errors"
	"time"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/repository"
	"plumenote-server/pkg/apperror"

	"github.com/google/uuid"
)

// storageError converts repository failures into apperror categories.
func storageError(message string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NewNotFound(message + ": not found")
	}
	return apperror.NewTransientIO(message, err)
}

// latestVersion returns nil when the note has no versions yet.
func latestVersion(ctx context.Context, versions repository.NoteVersionRepository, noteID string) (*domain.NoteVersion, error) {
	latest, err := versions.Latest(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func nextVersionNumber(latest *domain.NoteVersion) int64 {
	if latest == nil {
		return 1
	}
	return latest.Version + 1
}

// captureVersion snapshots the note's current title and text.
func captureVersion(note *domain.Note, number int64, actorID string, now time.Time) *domain.NoteVersion {
	if actorID == "" {
		actorID = note.OwnerID
	}

	v := &domain.NoteVersion{
		ID:          uuid.New().String(),
		NoteID:      note.ID,
		Version:     number,
		CreatedByID: actorID,
		CreatedAt:   now,
	}
	v.Capture(note)
	return v
}

type Authorizer interface {
	Authorize(ctx context.Context, userID string, note *domain.Note) error
}

// OwnerAuthorizer grants access to the note owner only. Deployments with
// shared workspaces plug in the ACL service instead.
type OwnerAuthorizer struct{}

func (OwnerAuthorizer) Authorize(ctx context.Context, userID string, note *domain.Note) error {
	if note.OwnerID != userID {
		return apperror.NewForbidden("note does not belong to user")
	}
	return nil
}
