package service

import (
	"context"
	"sort"
	"sync"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/repository"
)

type mockNoteRepo struct {
	mu    sync.Mutex
	notes map[string]*domain.Note

	loadErr  error
	saveErr  error
	loads    int
	panicked bool
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{
		notes: make(map[string]*domain.Note),
	}
}

func (m *mockNoteRepo) Create(ctx context.Context, note *domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[note.ID] = note
	return nil
}

func (m *mockNoteRepo) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, exists := m.notes[id]; exists {
		copied := *n
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockNoteRepo) LoadState(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.panicked {
		panic("storage exploded")
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	n, exists := m.notes[id]
	if !exists {
		return nil, repository.ErrNotFound
	}
	return n.State, nil
}

func (m *mockNoteRepo) SaveState(ctx context.Context, id string, state []byte, content *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	n, exists := m.notes[id]
	if !exists {
		n = &domain.Note{ID: id}
		m.notes[id] = n
	}
	n.State = state
	n.Content = content
	return nil
}

func (m *mockNoteRepo) setContent(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[id].Content = &text
}

type mockVersionRepo struct {
	mu       sync.Mutex
	versions []*domain.NoteVersion

	latestErr error
	createErr error
}

func (m *mockVersionRepo) Create(ctx context.Context, v *domain.NoteVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.versions {
		if existing.NoteID == v.NoteID && existing.Version == v.Version {
			return repository.ErrVersionExists
		}
	}
	m.versions = append(m.versions, v)
	return nil
}

func (m *mockVersionRepo) FindByID(ctx context.Context, id string) (*domain.NoteVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockVersionRepo) Latest(ctx context.Context, noteID string) (*domain.NoteVersion, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	list, _ := m.List(ctx, noteID, 1)
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return list[0], nil
}

func (m *mockVersionRepo) List(ctx context.Context, noteID string, limit int) ([]*domain.NoteVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.NoteVersion
	for _, v := range m.versions {
		if v.NoteID == noteID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockRestorer applies a restore to the mock repositories, or fails without
// touching them when err is set.
type mockRestorer struct {
	notes    *mockNoteRepo
	versions *mockVersionRepo
	err      error
	last     *repository.RestoreTx
}

func (m *mockRestorer) Restore(ctx context.Context, tx *repository.RestoreTx) error {
	if m.err != nil {
		return m.err
	}
	current, err := m.notes.FindByID(ctx, tx.NoteID)
	if err != nil {
		return err
	}
	tx.PreVersion.Capture(current)
	if err := m.versions.Create(ctx, tx.PreVersion); err != nil {
		return err
	}

	m.notes.mu.Lock()
	defer m.notes.mu.Unlock()
	n := m.notes.notes[tx.NoteID]
	n.Title = tx.Title
	n.Content = tx.Content
	n.State = tx.State
	n.UpdatedAt = tx.UpdatedAt
	m.last = tx
	return nil
}
