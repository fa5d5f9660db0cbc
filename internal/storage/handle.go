// Package storage owns the process-wide persistence handle. The backing
// store is opened on first use and closed exactly once at shutdown.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/repository"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("storage: handle closed")

type Opener func(ctx context.Context) (repository.Store, error)

// Handle implements repository.Store by delegating to a lazily opened store.
// A failed open is retried by the next caller.
type Handle struct {
	open   Opener
	logger *zap.Logger

	mu     sync.Mutex
	store  repository.Store
	closed bool

	closeOnce sync.Once
	closeErr  error
}

func NewHandle(open Opener, logger *zap.Logger) *Handle {
	return &Handle{
		open:   open,
		logger: logger,
	}
}

func (h *Handle) Get(ctx context.Context) (repository.Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.store != nil {
		return h.store, nil
	}

	store, err := h.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage unavailable: %w", err)
	}

	h.store = store
	h.logger.Info("storage opened")
	return store, nil
}

// Close releases the store if it was ever opened. Later calls return the
// first result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.closed = true
		if h.store == nil {
			return
		}

		h.closeErr = h.store.Close()
		h.store = nil
		h.logger.Info("storage closed", zap.Error(h.closeErr))
	})
	return h.closeErr
}

func (h *Handle) Notes() repository.NoteRepository           { return lazyNotes{h} }
func (h *Handle) Versions() repository.NoteVersionRepository { return lazyVersions{h} }

func (h *Handle) Restore(ctx context.Context, tx *repository.RestoreTx) error {
	store, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return store.Restore(ctx, tx)
}

type lazyNotes struct{ h *Handle }

func (l lazyNotes) Create(ctx context.Context, note *domain.Note) error {
	store, err := l.h.Get(ctx)
	if err != nil {
		return err
	}
	return store.Notes().Create(ctx, note)
}

func (l lazyNotes) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	store, err := l.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Notes().FindByID(ctx, id)
}

func (l lazyNotes) LoadState(ctx context.Context, id string) ([]byte, error) {
	store, err := l.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Notes().LoadState(ctx, id)
}

func (l lazyNotes) SaveState(ctx context.Context, id string, state []byte, content *string) error {
	store, err := l.h.Get(ctx)
	if err != nil {
		return err
	}
	return store.Notes().SaveState(ctx, id, state, content)
}

type lazyVersions struct{ h *Handle }

func (l lazyVersions) Create(ctx context.Context, v *domain.NoteVersion) error {
	store, err := l.h.Get(ctx)
	if err != nil {
		return err
	}
	return store.Versions().Create(ctx, v)
}

func (l lazyVersions) FindByID(ctx context.Context, id string) (*domain.NoteVersion, error) {
	store, err := l.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Versions().FindByID(ctx, id)
}

func (l lazyVersions) Latest(ctx context.Context, noteID string) (*domain.NoteVersion, error) {
	store, err := l.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Versions().Latest(ctx, noteID)
}

func (l lazyVersions) List(ctx context.Context, noteID string, limit int) ([]*domain.NoteVersion, error) {
	store, err := l.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Versions().List(ctx, noteID, limit)
}
