package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSnapshotInterval = 5 * time.Minute
	snapshotCallTimeout     = 30 * time.Second
)

type SnapshotAPI interface {
	CreateSnapshot(ctx context.Context, noteID string) (*SnapshotResult, error)
	SendBeacon(noteID string)
}

type LifecycleEvent int

const (
	VisibilityHidden LifecycleEvent = iota
	Unload
)

func (e LifecycleEvent) String() string {
	switch e {
	case VisibilityHidden:
		return "visibility_hidden"
	case Unload:
		return "unload"
	default:
		return "unknown"
	}
}

// Lifecycle delivers page lifecycle events. Subscribe returns the function
// that removes the listener.
type Lifecycle interface {
	Subscribe(func(LifecycleEvent)) (unsubscribe func())
}

type SchedulerState int

const (
	Idle SchedulerState = iota
	Active
)

func (s SchedulerState) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

type session struct {
	noteID       string
	lastActivity func() time.Time
	timer        Timer
	unsubscribe  func()
}

// Scheduler triggers snapshots for one editing session at a time. Every
// trigger is best effort: failures are logged and never returned.
type Scheduler struct {
	api       SnapshotAPI
	lifecycle Lifecycle
	clock     Clock
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	session *session
	calls   sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

func NewScheduler(api SnapshotAPI, lifecycle Lifecycle, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		api:       api,
		lifecycle: lifecycle,
		clock:     RealClock(),
		interval:  DefaultSnapshotInterval,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return Active
	}
	return Idle
}

// Start begins a session for noteID. lastActivity reports when the user
// last edited. A session already running is stopped first.
func (s *Scheduler) Start(noteID string, lastActivity func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	sess := &session{noteID: noteID, lastActivity: lastActivity}
	s.session = sess
	sess.timer = s.clock.AfterFunc(s.interval, func() { s.tick(sess) })
	if s.lifecycle != nil {
		sess.unsubscribe = s.lifecycle.Subscribe(func(e LifecycleEvent) { s.onLifecycle(sess, e) })
	}

	s.logger.Debug("snapshot session started", zap.String("noteID", noteID))
}

// Stop ends the session with one final snapshot request.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	sess := s.session
	if sess == nil {
		return
	}

	sess.timer.Stop()
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	s.session = nil

	s.fire(sess.noteID, "teardown")
	s.logger.Debug("snapshot session stopped", zap.String("noteID", sess.noteID))
}

// Wait blocks until every snapshot request already issued has returned.
func (s *Scheduler) Wait() {
	s.calls.Wait()
}

func (s *Scheduler) tick(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess {
		return
	}

	if s.clock.Now().Sub(sess.lastActivity()) <= s.interval {
		s.fire(sess.noteID, "interval")
	}
	sess.timer = s.clock.AfterFunc(s.interval, func() { s.tick(sess) })
}

func (s *Scheduler) onLifecycle(sess *session, e LifecycleEvent) {
	s.mu.Lock()
	current := s.session == sess
	s.mu.Unlock()

	if !current {
		return
	}
	s.logger.Debug("sending snapshot beacon", zap.String("noteID", sess.noteID), zap.Stringer("event", e))
	s.api.SendBeacon(sess.noteID)
}

func (s *Scheduler) fire(noteID, trigger string) {
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()

		ctx, cancel := context.WithTimeout(context.Background(), snapshotCallTimeout)
		defer cancel()

		result, err := s.api.CreateSnapshot(ctx, noteID)
		if err != nil {
			s.logger.Debug("snapshot request failed", zap.String("noteID", noteID), zap.String("trigger", trigger), zap.Error(err))
			return
		}
		s.logger.Debug("snapshot requested",
			zap.String("noteID", noteID),
			zap.String("trigger", trigger),
			zap.String("reason", string(result.Reason)),
		)
	}()
}
