package apierror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ae, status := FromError(context.Canceled, "req_test")
	if status != http.StatusRequestTimeout {
		t.Fatalf("status=%d", status)
	}
	if ae.Type != TypeAPI {
		t.Fatalf("type=%q", ae.Type)
	}
	if ae.Code != "cancelled" {
		t.Fatalf("code=%q", ae.Code)
	}
	if ae.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ae.RequestID)
	}
}

func TestFromError_WrappedAPIErrorKeepsType(t *testing.T) {
	err := fmt.Errorf("upgrade: %w", &Error{Type: TypeUnavailable, Message: "draining"})
	ae, status := FromError(err, "req_test")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", status)
	}
	if ae.Message != "draining" || ae.RequestID != "req_test" {
		t.Fatalf("error=%+v", ae)
	}
}

func TestFromError_UnknownIsOpaque(t *testing.T) {
	ae, status := FromError(fmt.Errorf("dial tcp: secret host"), "")
	if status != http.StatusInternalServerError {
		t.Fatalf("status=%d", status)
	}
	if ae.Message != "internal error" {
		t.Fatalf("message=%q", ae.Message)
	}
}

func TestWrite_DerivesStatusFromType(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, 0, &Error{Type: TypeNotFound, Message: "not found", RequestID: "req_1"})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	var env struct {
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Type != TypeNotFound || env.Error.RequestID != "req_1" {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestStatusFromType(t *testing.T) {
	cases := map[Type]int{
		TypeInvalidRequest: http.StatusBadRequest,
		TypePermission:     http.StatusForbidden,
		TypeNotFound:       http.StatusNotFound,
		TypeRateLimit:      http.StatusTooManyRequests,
		TypeUnavailable:    http.StatusServiceUnavailable,
		TypeAPI:            http.StatusInternalServerError,
		Type("other"):      http.StatusInternalServerError,
	}
	for typ, want := range cases {
		if got := StatusFromType(typ); got != want {
			t.Errorf("StatusFromType(%q)=%d, want %d", typ, got, want)
		}
	}
}
