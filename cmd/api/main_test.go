package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func TestSetupMetricsExposesSchedulingMetrics(t *testing.T) {
	handler, reg, m := setupMetrics()
	if handler == nil || reg == nil || m == nil {
		t.Fatalf("expected non-nil handler, registry and metrics")
	}

	m.ObserveBooking("create", "success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clinic_scheduling_bookings_total") {
		t.Fatalf("expected bookings counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be registered")
	}
}

func TestBuildAppInMemory(t *testing.T) {
	cfg := &appconfig.Config{
		Env:            "test",
		UseMemoryStore: true,
		LockWait:       time.Second,
		ClinicDayStart: "08:00",
		ClinicDayEnd:   "18:00",
		ClinicTimezone: "UTC",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	a, err := buildApp(context.Background(), cfg, logging.NewWithWriter(io.Discard, "error"))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	if a.deliverer != nil {
		t.Fatalf("expected no outbox deliverer without postgres")
	}

	body := `{"start_time":"2030-03-04T09:00:00Z","appointment_type_id":"checkup","assigned_vet":"vet-a","room_number":"room-1"}`
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// Smart scheduling against the same slot proposes alternatives.
	smart := `{"start_time":"2030-03-04T09:00:00Z","duration_minutes":30,"vet_id":"vet-a"}`
	req = httptest.NewRequest(http.MethodPost, "/appointments/smart-schedule", bytes.NewBufferString(smart))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"available":false`) {
		t.Fatalf("expected the requested slot to be unavailable, got %s", rr.Body.String())
	}
}

func TestBuildAppRejectsBadClinicDefaults(t *testing.T) {
	cfg := &appconfig.Config{
		UseMemoryStore: true,
		ClinicDayStart: "17:00",
		ClinicDayEnd:   "09:00",
		ClinicTimezone: "UTC",
	}
	if _, err := buildApp(context.Background(), cfg, logging.NewWithWriter(io.Discard, "error")); err == nil {
		t.Fatal("expected invalid clinic hours to fail startup")
	}
}
