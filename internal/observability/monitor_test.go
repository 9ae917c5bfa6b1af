package observability

import (
	"strings"
	"testing"
	"time"
)

func TestRecordRequestAccumulatesCount(t *testing.T) {
	m := NewMonitor()
	defer m.Close()

	m.RecordRequest("/api", 5*time.Millisecond, false)
	m.RecordRequest("/api", 10*time.Millisecond, true)

	snaps, total := m.Snapshots()
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(snaps) != 1 {
		t.Fatalf("len(snaps) = %d, want 1", len(snaps))
	}
	if snaps[0].Count != 2 {
		t.Errorf("Count = %d, want 2", snaps[0].Count)
	}
	if snaps[0].Errors != 1 {
		t.Errorf("Errors = %d, want 1", snaps[0].Errors)
	}
}

func TestDisabledMonitorDropsRecords(t *testing.T) {
	m := NewMonitor()
	defer m.Close()
	m.Disable()

	m.RecordRequest("/api", time.Millisecond, false)

	_, total := m.Snapshots()
	if total != 0 {
		t.Fatalf("total = %d, want 0 while disabled", total)
	}
}

func TestStartEndTraceRecordsDuration(t *testing.T) {
	m := NewMonitor()
	defer m.Close()

	start := m.StartTrace()
	if start == 0 {
		t.Fatal("StartTrace returned 0 while enabled")
	}
	m.EndTrace("/traced", start, false)

	snaps, _ := m.Snapshots()
	if len(snaps) != 1 || snaps[0].Name != "/traced" {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
}

func TestEndTraceIgnoresZeroStart(t *testing.T) {
	m := NewMonitor()
	defer m.Close()

	m.EndTrace("/never", 0, false)

	_, total := m.Snapshots()
	if total != 0 {
		t.Fatalf("total = %d, want 0", total)
	}
}

func TestReportIncludesHandlerName(t *testing.T) {
	m := NewMonitor()
	defer m.Close()

	m.RecordRequest("/orders", time.Millisecond, false)

	report := m.Report()
	if !strings.Contains(report, "/orders") {
		t.Errorf("report missing handler name: %s", report)
	}
	if !strings.Contains(report, "requests: 1") {
		t.Errorf("report missing request count: %s", report)
	}
}
