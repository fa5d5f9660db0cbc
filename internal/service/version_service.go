package service

import (
	"context"
	"errors"
	"time"

	"plumenote-server/internal/crdt"
	"plumenote-server/internal/domain"
	"plumenote-server/internal/metrics"
	"plumenote-server/internal/repository"
	"plumenote-server/pkg/apperror"

	"go.uber.org/zap"
)

const (
	defaultVersionListLimit = 50
	maxVersionListLimit     = 200
)

type VersionService struct {
	notes    repository.NoteRepository
	versions repository.NoteVersionRepository
	restorer repository.Restorer
	authz    Authorizer
	logger   *zap.Logger
	now      func() time.Time

	restored func(noteID string, state []byte)
}

func NewVersionService(
	notes repository.NoteRepository,
	versions repository.NoteVersionRepository,
	restorer repository.Restorer,
	authz Authorizer,
	logger *zap.Logger,
) *VersionService {
	return &VersionService{
		notes:    notes,
		versions: versions,
		restorer: restorer,
		authz:    authz,
		logger:   logger.Named("versions"),
		now:      time.Now,
	}
}

// OnRestore registers fn to run after each successful restore with the
// note's new state. The collaboration hub uses it to reset live sessions.
func (s *VersionService) OnRestore(fn func(noteID string, state []byte)) {
	s.restored = fn
}

func (s *VersionService) loadNote(ctx context.Context, noteID, userID string) (*domain.Note, error) {
	note, err := s.notes.FindByID(ctx, noteID)
	if err != nil {
		return nil, storageError("note", err)
	}

	if s.authz != nil {
		if err := s.authz.Authorize(ctx, userID, note); err != nil {
			return nil, err
		}
	}
	return note, nil
}

func (s *VersionService) List(ctx context.Context, userID, noteID string, limit int) ([]domain.NoteVersionSummary, error) {
	if _, err := s.loadNote(ctx, noteID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultVersionListLimit
	}
	if limit > maxVersionListLimit {
		limit = maxVersionListLimit
	}

	versions, err := s.versions.List(ctx, noteID, limit)
	if err != nil {
		return nil, apperror.NewTransientIO("failed to list versions", err)
	}

	summaries := make([]domain.NoteVersionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, v.Summary())
	}
	return summaries, nil
}

func (s *VersionService) Get(ctx context.Context, userID, noteID, versionID string) (*domain.NoteVersion, error) {
	if _, err := s.loadNote(ctx, noteID, userID); err != nil {
		return nil, err
	}
	return s.findVersion(ctx, noteID, versionID)
}

func (s *VersionService) findVersion(ctx context.Context, noteID, versionID string) (*domain.NoteVersion, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, storageError("version", err)
	}
	if version.NoteID != noteID {
		return nil, apperror.NewNotFound("version: not found")
	}
	return version, nil
}

// Restore overwrites the note with the target version's text. The text the
// note has at write time is captured as a new version in the same write, and
// its id is returned as the undo target.
func (s *VersionService) Restore(ctx context.Context, userID, noteID, versionID string) (*domain.RestoreResult, error) {
	if noteID == "" || versionID == "" {
		return nil, apperror.NewValidation("note id and version id are required")
	}

	note, err := s.loadNote(ctx, noteID, userID)
	if err != nil {
		metrics.Restores.WithLabelValues("rejected").Inc()
		return nil, err
	}

	target, err := s.findVersion(ctx, noteID, versionID)
	if err != nil {
		metrics.Restores.WithLabelValues("rejected").Inc()
		return nil, err
	}

	latest, err := latestVersion(ctx, s.versions, noteID)
	if err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		return nil, apperror.NewTransientIO("failed to load latest version", err)
	}

	state, err := crdt.FromText(target.Content)
	if err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		return nil, apperror.NewInternal("failed to encode restored document", err)
	}

	var content *string
	if target.Content != "" {
		c := target.Content
		content = &c
	}

	now := s.now()
	pre := captureVersion(note, nextVersionNumber(latest), userID, now)

	err = s.restorer.Restore(ctx, &repository.RestoreTx{
		NoteID:     noteID,
		PreVersion: pre,
		Title:      target.Title,
		Content:    content,
		State:      state,
		UpdatedAt:  now,
	})
	if err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NewNotFound("note: not found")
		}
		return nil, apperror.NewTransientIO("failed to restore version", err)
	}

	s.logger.Info("version restored",
		zap.String("noteID", noteID),
		zap.Int64("restoredFrom", target.Version),
		zap.Int64("undoVersion", pre.Version),
		zap.String("userID", userID),
	)
	metrics.Restores.WithLabelValues("ok").Inc()

	if s.restored != nil {
		s.restored(noteID, state)
	}

	return &domain.RestoreResult{
		RestoredFromVersion: target.Version,
		UndoVersionID:       pre.ID,
	}, nil
}
