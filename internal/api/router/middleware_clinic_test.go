package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

func TestRequireClinicIDPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
		if !ok || clinicID != "clinic-abc" {
			t.Fatalf("expected clinic id propagated, got %s / %v", clinicID, ok)
		}
		w.WriteHeader(http.StatusTeapot)
	})

	handler := requireClinicID(next)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(clinicHeader, " clinic-abc ")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected downstream status, got %d", rr.Code)
	}
}

func TestRequireClinicIDMissingHeader(t *testing.T) {
	handler := requireClinicID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a clinic")
	}))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing clinic, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "validation_error") {
		t.Fatalf("expected validation error body, got %s", rr.Body.String())
	}
}
