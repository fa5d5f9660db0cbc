package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultUndoWindow = 30 * time.Second

var (
	ErrUndoUnavailable   = errors.New("undo is no longer available")
	ErrRestoreInProgress = errors.New("a restore is already in progress")
)

type RestoreAPI interface {
	Restore(ctx context.Context, noteID, versionID string) (*RestoreResult, error)
}

type UndoState int

const (
	UndoIdle UndoState = iota
	UndoRestoring
	UndoRestored
	UndoUndoing
)

func (s UndoState) String() string {
	switch s {
	case UndoRestoring:
		return "restoring"
	case UndoRestored:
		return "restored"
	case UndoUndoing:
		return "undoing"
	default:
		return "idle"
	}
}

// UndoController restores versions of one note and keeps a single-use undo
// for the most recent restore until the window expires.
type UndoController struct {
	api    RestoreAPI
	noteID string
	clock  Clock
	window time.Duration
	logger *zap.Logger

	mu            sync.Mutex
	state         UndoState
	undoVersionID string
	expiresAt     time.Time
	timer         Timer
	generation    uint64
}

type UndoOption func(*UndoController)

func WithUndoClock(clock Clock) UndoOption {
	return func(u *UndoController) { u.clock = clock }
}

func WithUndoWindow(d time.Duration) UndoOption {
	return func(u *UndoController) { u.window = d }
}

func WithUndoLogger(logger *zap.Logger) UndoOption {
	return func(u *UndoController) { u.logger = logger }
}

func NewUndoController(api RestoreAPI, noteID string, opts ...UndoOption) *UndoController {
	u := &UndoController{
		api:    api,
		noteID: noteID,
		clock:  RealClock(),
		window: DefaultUndoWindow,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UndoController) State() UndoState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Pending reports the armed undo target and when it expires.
func (u *UndoController) Pending() (versionID string, expiresAt time.Time, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UndoRestored {
		return "", time.Time{}, false
	}
	return u.undoVersionID, u.expiresAt, true
}

// Restore reverts the note to versionID and arms the undo window. A new
// restore replaces any window still armed.
func (u *UndoController) Restore(ctx context.Context, versionID string) (*RestoreResult, error) {
	u.mu.Lock()
	if u.state == UndoRestoring || u.state == UndoUndoing {
		u.mu.Unlock()
		return nil, ErrRestoreInProgress
	}
	u.disarmLocked()
	u.state = UndoRestoring
	u.mu.Unlock()

	result, err := u.api.Restore(ctx, u.noteID, versionID)

	u.mu.Lock()
	defer u.mu.Unlock()

	if err != nil {
		u.state = UndoIdle
		return nil, err
	}

	u.armLocked(result.UndoVersionID)
	return result, nil
}

// Undo restores the undo target of the last restore. It is accepted once
// per window; a failed undo is not rearmed.
func (u *UndoController) Undo(ctx context.Context) (*RestoreResult, error) {
	u.mu.Lock()
	if u.state != UndoRestored || !u.clock.Now().Before(u.expiresAt) {
		if u.state == UndoRestored {
			u.disarmLocked()
		}
		u.mu.Unlock()
		return nil, ErrUndoUnavailable
	}

	versionID := u.undoVersionID
	u.disarmLocked()
	u.state = UndoUndoing
	u.mu.Unlock()

	result, err := u.api.Restore(ctx, u.noteID, versionID)

	u.mu.Lock()
	u.state = UndoIdle
	u.mu.Unlock()

	if err != nil {
		u.logger.Debug("undo failed", zap.String("noteID", u.noteID), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Close drops the undo window without restoring.
func (u *UndoController) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == UndoRestored {
		u.disarmLocked()
	}
}

func (u *UndoController) armLocked(undoVersionID string) {
	u.generation++
	generation := u.generation

	u.state = UndoRestored
	u.undoVersionID = undoVersionID
	u.expiresAt = u.clock.Now().Add(u.window)
	u.timer = u.clock.AfterFunc(u.window, func() { u.expire(generation) })
}

func (u *UndoController) expire(generation uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.generation != generation || u.state != UndoRestored {
		return
	}
	u.disarmLocked()
	u.logger.Debug("undo window expired", zap.String("noteID", u.noteID))
}

func (u *UndoController) disarmLocked() {
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	u.generation++
	u.undoVersionID = ""
	u.expiresAt = time.Time{}
	u.state = UndoIdle
}
