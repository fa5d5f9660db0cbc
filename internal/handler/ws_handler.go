package handler

import (
	"errors"
	"net/http"

	"plumenote-server/internal/collab"
	"plumenote-server/internal/middleware"
	"plumenote-server/internal/repository"
	"plumenote-server/internal/service"
	"plumenote-server/pkg/apperror"
	"plumenote-server/pkg/jwt"
	"plumenote-server/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CollabHandler upgrades authenticated requests into collaboration room
// members. The session id in the path names the note's room.
type CollabHandler struct {
	hub       *collab.Hub
	notes     repository.NoteRepository
	authz     service.Authorizer
	jwtSecret string
	upgrader  ws.Upgrader
	logger    *zap.Logger
}

func NewCollabHandler(
	hub *collab.Hub,
	notes repository.NoteRepository,
	authz service.Authorizer,
	jwtSecret string,
	readBufferSize, writeBufferSize int,
	logger *zap.Logger,
) *CollabHandler {
	return &CollabHandler{
		hub:       hub,
		notes:     notes,
		authz:     authz,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("collab"),
	}
}

func (h *CollabHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		response.Unauthorized(w, "missing authorization token")
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Debug("token validation failed", zap.Error(err))
		response.Unauthorized(w, "invalid token")
		return
	}
	userID := claims.UserID

	sessionID := mux.Vars(r)["session"]
	noteID, err := service.ParseSessionID(sessionID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	note, err := h.notes.FindByID(r.Context(), noteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "note not found")
			return
		}
		response.FromError(w, apperror.NewTransientIO("failed to load note", err))
		return
	}

	if h.authz != nil {
		if err := h.authz.Authorize(r.Context(), userID, note); err != nil {
			response.FromError(w, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.String("userID", userID), zap.Error(err))
		return
	}

	client := collab.NewClient(uuid.New().String(), userID, sessionID, noteID, conn, h.hub)

	select {
	case h.hub.Register <- client:
	case <-h.hub.Done():
		conn.Close()
		return
	}

	h.logger.Debug("collaboration session joined",
		zap.String("client", client.ID),
		zap.String("userID", userID),
		zap.String("noteID", noteID),
	)

	go client.WritePump()
	go client.ReadPump()
}
