package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zegl/eligo/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{model.NewValidationError("title", "is required"), http.StatusBadRequest, "invalid"},
		{model.NewNotFoundError(model.KindList, "L1"), http.StatusNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", model.ErrConflict), http.StatusConflict, "conflict"},
		{model.WrapStorage("lists.get", errors.New("connection reset")), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code, msg := Classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Fatalf("Classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
		if code == "internal" && msg != "internal error" {
			t.Fatalf("internal error leaked: %q", msg)
		}
	}
}

func TestWriteServiceError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteServiceError(rr, model.ErrUnauthorized)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "not allowed" || body.Code != http.StatusForbidden {
		t.Fatalf("unexpected body: %+v", body)
	}
}
