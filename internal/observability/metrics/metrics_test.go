package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveBooking("create", "success")
	m.ObserveBooking("create", "success")
	m.ObserveBooking("create", "conflict")
	m.ObserveConflictCheck(true)
	m.ObserveConflictCheck(false)
	m.ObserveConflictCheck(false)
	m.ObserveAlternatives(3)
	m.ObserveLatency("create", 0.02)

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "success")); got != 2 {
		t.Fatalf("expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "conflict")); got != 1 {
		t.Fatalf("expected 1 conflicting create, got %v", got)
	}
	if got := testutil.ToFloat64(m.conflictChecksTotal.WithLabelValues("clear")); got != 2 {
		t.Fatalf("expected 2 clear checks, got %v", got)
	}
	if got := testutil.CollectAndCount(m.alternativesReturned); got != 1 {
		t.Fatalf("expected alternatives histogram to be collected once, got %d", got)
	}
}

func TestSchedulingMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewSchedulingMetrics(nil)
	m.ObserveBooking("reschedule", "success")
	got, err := testutil.GatherAndCount(reg, "clinic_scheduling_bookings_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected bookings metric on default registerer, got %d", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("create", "success")
	m.ObserveConflictCheck(true)
	m.ObserveAlternatives(0)
	m.ObserveLatency("create", 0.1)
}
