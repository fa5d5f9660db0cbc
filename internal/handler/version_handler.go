package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"plumenote-server/internal/domain"
	"plumenote-server/internal/middleware"
	"plumenote-server/internal/service"
	"plumenote-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type VersionHandler struct {
	service  *service.VersionService
	validate *validator.Validate
}

func NewVersionHandler(service *service.VersionService) *VersionHandler {
	return &VersionHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if err := h.validate.Var(noteID, "required,uuid"); err != nil {
		response.BadRequest(w, "Invalid note id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "Invalid limit")
			return
		}
		limit = n
	}

	versions, err := h.service.List(r.Context(), middleware.GetUserID(r), noteID, limit)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, versions)
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	noteID, versionID := vars["id"], vars["versionId"]
	if h.validate.Var(noteID, "required,uuid") != nil || h.validate.Var(versionID, "required,uuid") != nil {
		response.BadRequest(w, "Invalid note or version id")
		return
	}

	version, err := h.service.Get(r.Context(), middleware.GetUserID(r), noteID, versionID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, version)
}

func (h *VersionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req domain.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	req.NoteID = mux.Vars(r)["id"]

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.Restore(r.Context(), middleware.GetUserID(r), req.NoteID, req.VersionID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, result)
}
