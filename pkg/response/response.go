package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"plumenote-server/pkg/apperror"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{
		Success: statusCode < 400,
		Data:    data,
	})
}

func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, statusCode int, err string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   err,
	})
}

func BadRequest(w http.ResponseWriter, err string) {
	Error(w, http.StatusBadRequest, err)
}

func Unauthorized(w http.ResponseWriter, err string) {
	Error(w, http.StatusUnauthorized, err)
}

func TooManyRequests(w http.ResponseWriter, err string) {
	Error(w, http.StatusTooManyRequests, err)
}

// FromError writes the status matching err's apperror category. Internal
// details are never echoed to the client.
func FromError(w http.ResponseWriter, err error) {
	switch apperror.TypeOf(err) {
	case apperror.TypeValidation:
		Error(w, http.StatusBadRequest, message(err))
	case apperror.TypeNotFound:
		Error(w, http.StatusNotFound, message(err))
	case apperror.TypeForbidden:
		Error(w, http.StatusForbidden, message(err))
	case apperror.TypeTransientIO:
		Error(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func message(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
