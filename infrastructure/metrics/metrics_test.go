package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}
	if m.EventsProcessedTotal == nil {
		t.Error("EventsProcessedTotal should not be nil")
	}
	if m.EventsFailedTotal == nil {
		t.Error("EventsFailedTotal should not be nil")
	}
	if m.VoteEventsTotal == nil {
		t.Error("VoteEventsTotal should not be nil")
	}
}

func TestRecordEventProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordEventProcessed("put", 100*time.Millisecond)
	m.RecordEventProcessed("put", 200*time.Millisecond)
	m.RecordEventProcessed("vote", 50*time.Millisecond)
}

func TestRecordEventFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordEventFailed("SVC_5001")
	m.RecordEventFailed("RES_2001")
}

func TestRecordProjectDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordProjectDuration(time.Now().Add(-2 * time.Second))
}

func TestRecordClaim(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordClaim("add")
	m.RecordClaim("edit")
}

func TestSetGraphPoolOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetGraphPoolOpen(10)
	m.SetGraphPoolOpen(0)
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)
	startTime := time.Now().Add(-1 * time.Hour)

	m.UpdateUptime(startTime)
}

func TestGovernanceCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.VoteEventsTotal.Inc()
	m.FinalizeEventsTotal.Inc()
	m.ReconcileSweepRetriesTotal.Inc()
	m.MergesTotal.Inc()
	m.EventsDuplicateTotal.Inc()
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
