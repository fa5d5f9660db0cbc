package service

import (
	"context"
	"errors"
	"time"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/metrics"
	"plumenote-server/internal/repository"
	"plumenote-server/pkg/apperror"
	"plumenote-server/pkg/hash"

	"go.uber.org/zap"
)

type SnapshotService struct {
	notes    repository.NoteRepository
	versions repository.NoteVersionRepository
	authz    Authorizer
	logger   *zap.Logger
	now      func() time.Time
}

func NewSnapshotService(
	notes repository.NoteRepository,
	versions repository.NoteVersionRepository,
	authz Authorizer,
	logger *zap.Logger,
) *SnapshotService {
	return &SnapshotService{
		notes:    notes,
		versions: versions,
		authz:    authz,
		logger:   logger.Named("snapshot"),
		now:      time.Now,
	}
}

// CreateSnapshot records the note's current text as a new version unless it
// matches the latest one. Concurrent calls are not serialized; a lost race
// on the version number is reported as no_change.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, noteID, actorID string) (*domain.SnapshotResult, error) {
	if noteID == "" {
		return nil, apperror.NewValidation("note id is required")
	}

	note, err := s.notes.FindByID(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.Snapshots.WithLabelValues(string(domain.SnapshotNoteNotFound)).Inc()
		return &domain.SnapshotResult{Created: false, Reason: domain.SnapshotNoteNotFound}, nil
	}
	if err != nil {
		metrics.Snapshots.WithLabelValues("error").Inc()
		return nil, apperror.NewTransientIO("failed to load note", err)
	}

	if s.authz != nil && actorID != "" {
		if err := s.authz.Authorize(ctx, actorID, note); err != nil {
			return nil, err
		}
	}

	latest, err := latestVersion(ctx, s.versions, noteID)
	if err != nil {
		metrics.Snapshots.WithLabelValues("error").Inc()
		return nil, apperror.NewTransientIO("failed to load latest version", err)
	}

	if unchanged(latest, note.PlainText()) {
		metrics.Snapshots.WithLabelValues(string(domain.SnapshotNoChange)).Inc()
		return &domain.SnapshotResult{Created: false, Reason: domain.SnapshotNoChange}, nil
	}

	version := captureVersion(note, nextVersionNumber(latest), actorID, s.now())
	if err := s.versions.Create(ctx, version); err != nil {
		if errors.Is(err, repository.ErrVersionExists) {
			s.logger.Info("version number taken by a concurrent snapshot",
				zap.String("noteID", noteID),
				zap.Int64("version", version.Version),
			)
			metrics.Snapshots.WithLabelValues(string(domain.SnapshotNoChange)).Inc()
			return &domain.SnapshotResult{Created: false, Reason: domain.SnapshotNoChange}, nil
		}
		metrics.Snapshots.WithLabelValues("error").Inc()
		return nil, apperror.NewTransientIO("failed to create version", err)
	}

	s.logger.Info("snapshot created",
		zap.String("noteID", noteID),
		zap.Int64("version", version.Version),
		zap.String("createdBy", version.CreatedByID),
	)
	metrics.Snapshots.WithLabelValues(string(domain.SnapshotCreated)).Inc()

	return &domain.SnapshotResult{Created: true, Reason: domain.SnapshotCreated}, nil
}

// unchanged reports whether current matches the latest version. With no
// version yet, only empty text counts as unchanged.
func unchanged(latest *domain.NoteVersion, current string) bool {
	if latest == nil {
		return current == ""
	}
	if latest.ContentHash != "" {
		return hash.Equal(latest.ContentHash, current)
	}
	return latest.Content == current
}
