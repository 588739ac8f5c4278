package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{BadRequest("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Forbidden("x"), http.StatusForbidden},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Internal("x"), http.StatusInternalServerError},
		{Unavailable("x"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("kind %d: status = %d, want %d", tt.err.Kind, got, tt.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("lock timeout")
	err := fmt.Errorf("recompute: %w", Wrap(KindUnavailable, "case is busy", cause).WithOp("lock"))

	if !Is(err, KindUnavailable) {
		t.Fatalf("expected unavailable kind, got %d", GetKind(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if got := err.Error(); got != "recompute: lock: case is busy: lock timeout" {
		t.Fatalf("Error() = %q", got)
	}
	if GetKind(cause) != KindUnknown {
		t.Fatalf("plain errors have no kind")
	}
}
