package collab

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"plumenote-server/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Persistence loads and saves room documents. Implementations must not
// block indefinitely and report failures through their own logging.
type Persistence interface {
	Fetch(ctx context.Context, sessionID string) []byte
	Store(ctx context.Context, sessionID string, state []byte)
}

type Options struct {
	StoreDebounce    time.Duration
	StoreMaxDebounce time.Duration
	MaxConnPerUser   int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
}

type Update struct {
	Client *Client
	State  []byte
}

type roomState struct {
	noteID string
	state  []byte
}

// storeQueue orders the writes of one room: a store older than one already
// written, or older than a reset, is dropped.
type storeQueue struct {
	mu   sync.Mutex
	last atomic.Uint64
}

func (q *storeQueue) advance(seq uint64) {
	for {
		cur := q.last.Load()
		if seq <= cur || q.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (q *storeQueue) run(seq uint64, store func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq <= q.last.Load() {
		return
	}
	store()
	q.advance(seq)
}

// pendingStore is the last flush of a closed room, kept until it is written.
// A room reopened meanwhile starts from its state instead of fetching.
type pendingStore struct {
	seq   uint64
	state []byte
	queue *storeQueue
}

type storeResult struct {
	noteID string
	seq    uint64
}

type room struct {
	noteID    string
	sessionID string
	clients   map[*Client]bool
	state     []byte
	ready     bool

	dirty      bool
	firstDirty time.Time
	timer      *time.Timer
	seq        uint64
	queue      *storeQueue
}

// Hub owns every collaboration room. All room state is confined to the Run
// goroutine; other goroutines talk to it through channels.
type Hub struct {
	persistence Persistence
	opts        Options
	logger      *zap.Logger

	rooms     map[string]*room
	pending   map[string]*pendingStore
	userConns map[string]int

	Register   chan *Client
	Unregister chan *Client
	Updates    chan *Update
	loads      chan *roomState
	resets     chan *roomState
	flushes    chan string
	stored     chan *storeResult

	stores  sync.WaitGroup
	closing chan struct{}
	done    chan struct{}
}

func NewHub(persistence Persistence, opts Options, logger *zap.Logger) *Hub {
	return &Hub{
		persistence: persistence,
		opts:        opts,
		logger:      logger.Named("collab"),
		rooms:       make(map[string]*room),
		pending:     make(map[string]*pendingStore),
		userConns:   make(map[string]int),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Updates:     make(chan *Update),
		loads:       make(chan *roomState),
		resets:      make(chan *roomState),
		flushes:     make(chan string),
		stored:      make(chan *storeResult),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run serves rooms until ctx is cancelled, then stores every unsaved room
// and waits for pending stores before returning.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	storeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown(storeCtx)
			return

		case client := <-h.Register:
			h.registerClient(storeCtx, client)

		case client := <-h.Unregister:
			h.unregisterClient(storeCtx, client)

		case update := <-h.Updates:
			h.applyUpdate(update)

		case loaded := <-h.loads:
			h.finishLoad(loaded)

		case reset := <-h.resets:
			h.resetRoom(reset)

		case noteID := <-h.flushes:
			if r, ok := h.rooms[noteID]; ok {
				h.flush(storeCtx, r)
			}

		case result := <-h.stored:
			if p, ok := h.pending[result.noteID]; ok && p.seq <= result.seq {
				delete(h.pending, result.noteID)
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Reset replaces the live document of a note's room, if one is open, and
// pushes it to every member. Unsaved room state is discarded, including a
// store still queued by a room that has since closed.
func (h *Hub) Reset(noteID string, state []byte) {
	select {
	case h.resets <- &roomState{noteID: noteID, state: state}:
	case <-h.done:
	}
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	if h.opts.MaxConnPerUser > 0 && h.userConns[client.UserID] >= h.opts.MaxConnPerUser {
		h.logger.Warn("max connections reached", zap.String("userID", client.UserID))
		h.sendMessage(client, TypeError, &ErrorPayload{Error: "too many connections"})
		close(client.send)
		return
	}

	r, exists := h.rooms[client.NoteID]
	if !exists {
		r = &room{
			noteID:    client.NoteID,
			sessionID: client.SessionID,
			clients:   make(map[*Client]bool),
			queue:     &storeQueue{},
		}
		h.rooms[client.NoteID] = r
		metrics.CollabRooms.Inc()

		if p, ok := h.pending[client.NoteID]; ok {
			delete(h.pending, client.NoteID)
			r.queue, r.seq, r.state, r.ready = p.queue, p.seq, p.state, true
		} else {
			go h.load(ctx, r.noteID, r.sessionID)
		}
	}

	r.clients[client] = true
	h.userConns[client.UserID]++

	h.logger.Debug("client joined",
		zap.String("client", client.ID),
		zap.String("userID", client.UserID),
		zap.String("noteID", client.NoteID),
		zap.Int("peers", len(r.clients)),
	)

	if r.ready {
		h.welcome(client, r)
	}
}

func (h *Hub) load(ctx context.Context, noteID, sessionID string) {
	state := h.persistence.Fetch(ctx, sessionID)
	select {
	case h.loads <- &roomState{noteID: noteID, state: state}:
	case <-h.done:
	}
}

func (h *Hub) finishLoad(loaded *roomState) {
	r, ok := h.rooms[loaded.noteID]
	if !ok || r.ready {
		return
	}

	// Updates received while loading are newer than the stored state.
	if !r.dirty {
		r.state = loaded.state
	}
	r.ready = true

	for client := range r.clients {
		h.welcome(client, r)
	}
}

func (h *Hub) welcome(client *Client, r *room) {
	h.sendMessage(client, TypeJoined, &JoinedPayload{
		SessionID: r.sessionID,
		Peers:     len(r.clients) - 1,
		HasState:  r.state != nil,
	})
	if r.state != nil {
		h.send(client, frame{kind: websocket.BinaryMessage, data: r.state})
	}
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	r, ok := h.rooms[client.NoteID]
	if !ok || !r.clients[client] {
		return
	}

	delete(r.clients, client)
	close(client.send)

	h.userConns[client.UserID]--
	if h.userConns[client.UserID] <= 0 {
		delete(h.userConns, client.UserID)
	}

	if len(r.clients) == 0 {
		h.flush(ctx, r)
		if r.seq > r.queue.last.Load() {
			h.pending[r.noteID] = &pendingStore{seq: r.seq, state: r.state, queue: r.queue}
		}
		delete(h.rooms, r.noteID)
		metrics.CollabRooms.Dec()
		h.logger.Debug("room closed", zap.String("noteID", r.noteID))
	}
}

func (h *Hub) applyUpdate(update *Update) {
	r, ok := h.rooms[update.Client.NoteID]
	if !ok || !r.clients[update.Client] {
		return
	}

	r.state = update.State
	for peer := range r.clients {
		if peer != update.Client {
			h.send(peer, frame{kind: websocket.BinaryMessage, data: update.State})
		}
	}
	h.markDirty(r)
}

// markDirty schedules a store after StoreDebounce of quiet, but no later
// than StoreMaxDebounce after the first unsaved update.
func (h *Hub) markDirty(r *room) {
	now := time.Now()
	if !r.dirty {
		r.dirty = true
		r.firstDirty = now
	}

	wait := h.opts.StoreDebounce
	if remaining := h.opts.StoreMaxDebounce - now.Sub(r.firstDirty); remaining < wait {
		wait = remaining
	}
	if wait < 0 {
		wait = 0
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	noteID := r.noteID
	r.timer = time.AfterFunc(wait, func() {
		select {
		case h.flushes <- noteID:
		case <-h.done:
		}
	})
}

func (h *Hub) flush(ctx context.Context, r *room) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if !r.dirty {
		return
	}
	r.dirty = false
	r.seq++

	seq, queue := r.seq, r.queue
	noteID, sessionID, state := r.noteID, r.sessionID, r.state

	h.stores.Add(1)
	go func() {
		defer h.stores.Done()
		queue.run(seq, func() {
			h.persistence.Store(ctx, sessionID, state)
		})
		select {
		case h.stored <- &storeResult{noteID: noteID, seq: seq}:
		case <-h.closing:
		}
	}()
}

func (h *Hub) resetRoom(reset *roomState) {
	r, ok := h.rooms[reset.noteID]
	if !ok {
		if p, pending := h.pending[reset.noteID]; pending {
			p.queue.advance(p.seq)
			delete(h.pending, reset.noteID)
		}
		return
	}

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.dirty = false
	r.seq++
	r.queue.advance(r.seq)
	r.state = reset.state
	r.ready = true

	for client := range r.clients {
		h.sendMessage(client, TypeReset, &ResetPayload{SessionID: r.sessionID, Reason: "restored"})
		h.send(client, frame{kind: websocket.BinaryMessage, data: r.state})
	}

	h.logger.Info("room reset", zap.String("noteID", r.noteID), zap.Int("clients", len(r.clients)))
}

func (h *Hub) shutdown(ctx context.Context) {
	for noteID, r := range h.rooms {
		h.flush(ctx, r)
		for client := range r.clients {
			close(client.send)
		}
		delete(h.rooms, noteID)
		metrics.CollabRooms.Dec()
	}
	h.userConns = make(map[string]int)
	h.pending = make(map[string]*pendingStore)

	close(h.closing)
	h.stores.Wait()
	h.logger.Info("collaboration hub stopped")
}

func (h *Hub) sendMessage(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("failed to build message", zap.Error(err))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	h.send(client, frame{kind: websocket.TextMessage, data: data})
}

// send never blocks the hub. A client whose buffer is full is dropped.
func (h *Hub) send(client *Client, f frame) {
	select {
	case client.send <- f:
	default:
		h.logger.Warn("client send buffer full, dropping", zap.String("client", client.ID))
		go func() {
			select {
			case h.Unregister <- client:
			case <-h.done:
			}
		}()
	}
}
