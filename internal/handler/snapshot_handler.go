package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/middleware"
	"plumenote-server/internal/service"
	"plumenote-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const beaconTimeout = 15 * time.Second

type SnapshotHandler struct {
	service  *service.SnapshotService
	validate *validator.Validate
	logger   *zap.Logger

	beacons sync.WaitGroup
}

func NewSnapshotHandler(service *service.SnapshotService, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.Named("snapshot"),
	}
}

func (h *SnapshotHandler) request(r *http.Request) (*domain.SnapshotRequest, error) {
	req := &domain.SnapshotRequest{NoteID: mux.Vars(r)["id"]}
	if err := h.validate.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r)
	if err != nil {
		response.BadRequest(w, "Invalid note id")
		return
	}

	result, err := h.service.CreateSnapshot(r.Context(), req.NoteID, middleware.GetUserID(r))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, result)
}

// Beacon accepts a one-way snapshot request sent while a page is hidden or
// unloading. It always answers 204 and never reports the outcome.
func (h *SnapshotHandler) Beacon(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r)
	if err != nil {
		response.NoContent(w)
		return
	}

	userID := middleware.GetUserID(r)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), beaconTimeout)

	h.beacons.Add(1)
	go func() {
		defer h.beacons.Done()
		defer cancel()

		result, err := h.service.CreateSnapshot(ctx, req.NoteID, userID)
		if err != nil {
			h.logger.Warn("beacon snapshot failed", zap.String("noteID", req.NoteID), zap.Error(err))
			return
		}
		h.logger.Debug("beacon snapshot", zap.String("noteID", req.NoteID), zap.String("reason", string(result.Reason)))
	}()

	response.NoContent(w)
}

// Wait blocks until in-flight beacon snapshots finish.
func (h *SnapshotHandler) Wait() {
	h.beacons.Wait()
}
