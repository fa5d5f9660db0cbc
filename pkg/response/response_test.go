package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"plumenote-server/pkg/apperror"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "validation", err: apperror.NewValidation("invalid note id"), wantStatus: http.StatusBadRequest, wantBody: "invalid note id"},
		{name: "not found", err: apperror.NewNotFound("version not found"), wantStatus: http.StatusNotFound, wantBody: "version not found"},
		{name: "forbidden", err: apperror.NewForbidden("note belongs to another user"), wantStatus: http.StatusForbidden, wantBody: "note belongs to another user"},
		{name: "transient", err: apperror.NewTransientIO("load note", errors.New("dial tcp")), wantStatus: http.StatusServiceUnavailable, wantBody: "storage temporarily unavailable"},
		{name: "foreign", err: errors.New("secret detail"), wantStatus: http.StatusInternalServerError, wantBody: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body Response
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Error != tt.wantBody {
				t.Errorf("error = %q, want %q", body.Error, tt.wantBody)
			}
		})
	}
}
