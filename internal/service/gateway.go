package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plumenote-server/internal/extract"
	"plumenote-server/internal/metrics"
	"plumenote-server/internal/repository"
	"plumenote-server/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const sessionPrefix = "note-"

type SessionParser func(sessionID string) (noteID string, err error)

// ParseSessionID accepts "note-<uuid>" or a bare uuid.
func ParseSessionID(sessionID string) (string, error) {
	id, err := uuid.Parse(strings.TrimPrefix(sessionID, sessionPrefix))
	if err != nil {
		return "", apperror.NewValidation(fmt.Sprintf("invalid session id %q", sessionID))
	}
	return id.String(), nil
}

func SessionIDForNote(noteID string) string {
	return sessionPrefix + noteID
}

// Gateway persists collaboration sessions. Fetch and Store never return
// errors or panic into the collaboration runtime: failures are logged and
// degrade to a missing document or a dropped write.
type Gateway struct {
	notes   repository.NoteRepository
	parse   SessionParser
	extract func(state []byte) (*string, error)
	breaker *gobreaker.CircuitBreaker
	loads   singleflight.Group
	logger  *zap.Logger
}

func NewGateway(notes repository.NoteRepository, logger *zap.Logger) *Gateway {
	g := &Gateway{
		notes:   notes,
		parse:   ParseSessionID,
		extract: extract.Text,
		logger:  logger.Named("gateway"),
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "collab-storage",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, repository.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return g
}

// Fetch returns the stored state for the session, or nil when the session
// id is invalid, the note is unknown, it has no state yet, or storage fails.
func (g *Gateway) Fetch(ctx context.Context, sessionID string) (state []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic while fetching document", zap.String("session", sessionID), zap.Any("panic", r))
			metrics.GatewayFetches.WithLabelValues("error").Inc()
			state = nil
		}
	}()

	noteID, err := g.parse(sessionID)
	if err != nil {
		g.logger.Warn("rejected fetch for invalid session", zap.String("session", sessionID), zap.Error(err))
		metrics.GatewayFetches.WithLabelValues("invalid_session").Inc()
		return nil
	}

	v, err, shared := g.loads.Do(noteID, func() (interface{}, error) {
		return g.breaker.Execute(func() (interface{}, error) {
			return g.notes.LoadState(ctx, noteID)
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		g.logger.Debug("no note for session", zap.String("noteID", noteID))
		metrics.GatewayFetches.WithLabelValues("empty").Inc()
		return nil
	}
	if err != nil {
		g.logger.Error("failed to fetch document", zap.String("noteID", noteID), zap.Error(err))
		metrics.GatewayFetches.WithLabelValues("error").Inc()
		return nil
	}

	state, _ = v.([]byte)
	if len(state) == 0 {
		metrics.GatewayFetches.WithLabelValues("empty").Inc()
		return nil
	}

	metrics.GatewayFetches.WithLabelValues("hit").Inc()
	if shared {
		return bytes.Clone(state)
	}
	return state
}

// Store persists state and its derived text. A text extraction failure
// stores a nil text rather than dropping the state.
func (g *Gateway) Store(ctx context.Context, sessionID string, state []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic while storing document", zap.String("session", sessionID), zap.Any("panic", r))
			metrics.GatewayStores.WithLabelValues("error").Inc()
		}
	}()

	noteID, err := g.parse(sessionID)
	if err != nil {
		g.logger.Warn("rejected store for invalid session", zap.String("session", sessionID), zap.Error(err))
		metrics.GatewayStores.WithLabelValues("invalid_session").Inc()
		return
	}

	content := g.deriveText(noteID, state)

	_, err = g.breaker.Execute(func() (interface{}, error) {
		return nil, g.notes.SaveState(ctx, noteID, state, content)
	})
	if err != nil {
		g.logger.Error("failed to store document", zap.String("noteID", noteID), zap.Int("bytes", len(state)), zap.Error(err))
		metrics.GatewayStores.WithLabelValues("error").Inc()
		return
	}

	metrics.GatewayStores.WithLabelValues("ok").Inc()
	metrics.GatewayStoreBytes.Observe(float64(len(state)))
}

func (g *Gateway) deriveText(noteID string, state []byte) (text *string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic during text extraction", zap.String("noteID", noteID), zap.Any("panic", r))
			metrics.ExtractionFailures.Inc()
			text = nil
		}
	}()

	text, err := g.extract(state)
	if err != nil {
		g.logger.Warn("text extraction failed, storing null text", zap.String("noteID", noteID), zap.Error(err))
		metrics.ExtractionFailures.Inc()
		return nil
	}
	return text
}
