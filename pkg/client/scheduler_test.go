package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"


	"github.com/stretchr/testify/assert"
)

type fakeSnapshotAPI struct {
	mu        sync.Mutex
	snapshots []string
	beacons   []string
	err       error
}

func (f *fakeSnapshotAPI) CreateSnapshot(ctx context.Context, noteID string) (*SnapshotResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, noteID)
	if f.err != nil {
		return nil, f.err
	}
	return &SnapshotResult{Created: true, Reason: ReasonCreated}, nil
}

func (f *fakeSnapshotAPI) SendBeacon(noteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beacons = append(f.beacons, noteID)
}

func (f *fakeSnapshotAPI) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots), len(f.beacons)
}

type fakeLifecycle struct {
	mu        sync.Mutex
	listeners map[int]func(LifecycleEvent)
	next      int
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{listeners: make(map[int]func(LifecycleEvent))}
}

func (l *fakeLifecycle) Subscribe(fn func(LifecycleEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *fakeLifecycle) emit(e LifecycleEvent) {
	l.mu.Lock()
	fns := make([]func(LifecycleEvent), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (l *fakeLifecycle) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.listeners)
}

type schedulerFixture struct {
	api       *fakeSnapshotAPI
	lifecycle *fakeLifecycle
	clock     *fakeClock
	scheduler *Scheduler

	mu       sync.Mutex
	activity time.Time
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{
		api:       &fakeSnapshotAPI{},
		lifecycle: newFakeLifecycle(),
		clock:     newFakeClock(),
	}
	f.scheduler = NewScheduler(f.api, f.lifecycle, WithClock(f.clock))
	f.activity = f.clock.Now()
	return f
}

func (f *schedulerFixture) lastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activity
}

func (f *schedulerFixture) touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = f.clock.Now()
}

func TestScheduler_PeriodicSnapshotWhileActive(t *testing.T) {
	f := newSchedulerFixture()
	f.scheduler.Start("note-1", f.lastActivity)
	assert.Equal(t, Active, f.scheduler.State())

	f.clock.Advance(4 * time.Minute)
	f.touch()
	f.clock.Advance(time.Minute)
	f.scheduler.Wait()

	snapshots, _ := f.api.counts()
	assert.Equal(t, 1, snapshots)
}

func TestScheduler_SkipsWhenIdle(t *testing.T) {
	f := newSchedulerFixture()
	f.scheduler.Start("note-1", f.lastActivity)

	f.clock.Advance(5 * time.Minute)
	f.clock.Advance(5 * time.Minute)
	f.clock.Advance(5 * time.Minute)
	f.scheduler.Wait()

	snapshots, _ := f.api.counts()
	assert.Equal(t, 1, snapshots, "only the first interval saw recent activity")
	assert.Equal(t, 1, f.clock.pending(), "exactly one timer stays armed")
}

func TestScheduler_LifecycleEventsSendBeacons(t *testing.T) {
	f := newSchedulerFixture()
	f.scheduler.Start("note-1", f.lastActivity)

	f.lifecycle.emit(VisibilityHidden)
	f.lifecycle.emit(Unload)

	snapshots, beacons := f.api.counts()
	assert.Equal(t, 0, snapshots)
	assert.Equal(t, 2, beacons)
}

func TestScheduler_StopSendsFinalSnapshotAndDeregisters(t *testing.T) {
	f := newSchedulerFixture()
	f.scheduler.Start("note-1", f.lastActivity)
	assert.Equal(t, 1, f.lifecycle.count())

	f.scheduler.Stop()
	f.scheduler.Wait()

	assert.Equal(t, Idle, f.scheduler.State())
	assert.Equal(t, 0, f.lifecycle.count())
	assert.Equal(t, 0, f.clock.pending())

	snapshots, _ := f.api.counts()
	assert.Equal(t, 1, snapshots)

	f.touch()
	f.clock.Advance(10 * time.Minute)
	f.lifecycle.emit(Unload)
	f.scheduler.Wait()

	snapshots, beacons := f.api.counts()
	assert.Equal(t, 1, snapshots, "no triggers after stop")
	assert.Equal(t, 0, beacons)

	f.scheduler.Stop()
	f.scheduler.Wait()
	snapshots, _ = f.api.counts()
	assert.Equal(t, 1, snapshots, "stopping an idle scheduler is a no-op")
}

func TestScheduler_StartReplacesPreviousSession(t *testing.T) {
	f := newSchedulerFixture()
	f.scheduler.Start("note-1", f.lastActivity)
	f.scheduler.Start("note-2", f.lastActivity)
	f.scheduler.Wait()

	assert.Equal(t, 1, f.lifecycle.count())
	assert.Equal(t, 1, f.clock.pending())

	f.touch()
	f.clock.Advance(5 * time.Minute)
	f.lifecycle.emit(VisibilityHidden)
	f.scheduler.Wait()

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Equal(t, []string{"note-1", "note-2"}, f.api.snapshots)
	assert.Equal(t, []string{"note-2"}, f.api.beacons)
}

func TestScheduler_FailuresAreSwallowed(t *testing.T) {
	f := newSchedulerFixture()
	f.api.err = errors.New("offline")
	f.scheduler.Start("note-1", f.lastActivity)

	f.touch()
	f.clock.Advance(5 * time.Minute)
	f.scheduler.Stop()
	f.scheduler.Wait()

	snapshots, _ := f.api.counts()
	assert.Equal(t, 2, snapshots)
}
