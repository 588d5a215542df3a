package alerting

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"fleet-sentinel/internal/metrics"
	"fleet-sentinel/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testAlert(c Category, source string) Alert {
	return New(c, baseTime, source, "u1", "test alert from: "+source, 6, 5)
}

func TestAlert_String(t *testing.T) {
	a := New(CategoryFailedLoginBurst, baseTime, "ip1", "", "Too many failed login attempts from: ip1", 6, 5)

	want := "[ALERT] 2024-03-01T12:00:00Z - Too many failed login attempts from: ip1"
	if got := a.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		category Category
		want     Severity
	}{
		{CategoryUnauthorizedAccess, SeverityCritical},
		{CategoryFailedLoginBurst, SeverityHigh},
		{CategoryAbnormalPower, SeverityHigh},
		{CategoryCommandSpam, SeverityMedium},
		{CategoryRapidTemperatureChange, SeverityMedium},
		{Category("other"), SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			a := New(tt.category, baseTime, "src", "", "msg", 0, 0)
			if a.Severity != tt.want {
				t.Errorf("Severity = %s, want %s", a.Severity, tt.want)
			}
		})
	}

	a, b := testAlert(CategoryCommandSpam, "x"), testAlert(CategoryCommandSpam, "x")
	if a.ID == b.ID {
		t.Error("alerts should get distinct IDs")
	}
}

func TestSink_RecordAndList(t *testing.T) {
	sink := NewSink()

	sink.Record(testAlert(CategoryFailedLoginBurst, "a"))
	sink.Record(testAlert(CategoryCommandSpam, "b"))
	sink.Record(testAlert(CategoryFailedLoginBurst, "c"))

	if sink.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", sink.Len())
	}

	list := sink.List()
	for i, want := range []string{"a", "b", "c"} {
		if list[i].SourceID != want {
			t.Errorf("List()[%d].SourceID = %s, want %s", i, list[i].SourceID, want)
		}
	}

	// List returns a copy.
	list[0].Message = "changed"
	if sink.List()[0].Message == "changed" {
		t.Error("List() exposed the internal log")
	}

	if got := sink.ByCategory(CategoryFailedLoginBurst); len(got) != 2 {
		t.Errorf("ByCategory() returned %d alerts, want 2", len(got))
	}
	if got := sink.ByCategory(CategoryAbnormalPower); len(got) != 0 {
		t.Errorf("ByCategory() returned %d alerts, want 0", len(got))
	}
}

func TestSink_Drain(t *testing.T) {
	sink := NewSink()

	if got := sink.Drain(); len(got) != 0 {
		t.Errorf("Drain() on empty sink = %d alerts, want 0", len(got))
	}

	sink.Record(testAlert(CategoryCommandSpam, "a"))
	sink.Record(testAlert(CategoryCommandSpam, "b"))

	if got := sink.Drain(); len(got) != 2 {
		t.Fatalf("first Drain() = %d alerts, want 2", len(got))
	}
	if got := sink.Drain(); len(got) != 0 {
		t.Errorf("second Drain() = %d alerts, want 0", len(got))
	}

	sink.Record(testAlert(CategoryCommandSpam, "c"))
	got := sink.Drain()
	if len(got) != 1 || got[0].SourceID != "c" {
		t.Errorf("Drain() = %v, want only c", got)
	}

	// The log is append-only.
	if sink.Len() != 3 {
		t.Errorf("Len() = %d after drains, want 3", sink.Len())
	}
}

func TestSink_Since(t *testing.T) {
	sink := NewSink()
	for _, s := range []string{"a", "b", "c"} {
		sink.Record(testAlert(CategoryCommandSpam, s))
	}

	tests := []struct {
		name      string
		index     int
		wantCount int
	}{
		{"from start", 0, 3},
		{"from middle", 1, 2},
		{"at end", 3, 0},
		{"past end", 10, 0},
		{"negative", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, next := sink.Since(tt.index)
			if len(got) != tt.wantCount {
				t.Errorf("Since(%d) = %d alerts, want %d", tt.index, len(got), tt.wantCount)
			}
			if next != 3 {
				t.Errorf("next = %d, want 3", next)
			}
		})
	}
}

func TestSink_Outbox(t *testing.T) {
	outbox := queue.NewRingBuffer[Alert](2)
	m := metrics.NewDetection(prometheus.NewRegistry())
	sink := NewSink(WithOutbox(outbox), WithMetrics(m))

	for _, s := range []string{"a", "b", "c"} {
		sink.Record(testAlert(CategoryCommandSpam, s))
	}

	if sink.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (overflow must not drop log entries)", sink.Len())
	}
	if outbox.Len() != 2 {
		t.Errorf("outbox Len() = %d, want 2", outbox.Len())
	}
	if got := testutil.ToFloat64(m.OutboxDropped); got != 1 {
		t.Errorf("outbox_dropped_total = %v, want 1", got)
	}

	first, _ := outbox.Pop()
	if first.SourceID != "a" {
		t.Errorf("outbox head = %s, want a", first.SourceID)
	}
}

func TestSink_ConcurrentRecord(t *testing.T) {
	sink := NewSink()

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				sink.Record(testAlert(CategoryCommandSpam, fmt.Sprintf("w%d", id)))
			}
		}(i)
	}
	wg.Wait()

	if sink.Len() != writers*perWriter {
		t.Errorf("Len() = %d, want %d", sink.Len(), writers*perWriter)
	}

	seen := make(map[string]bool)
	for _, a := range sink.List() {
		if seen[a.ID.String()] {
			t.Fatalf("duplicate alert %s", a.ID)
		}
		seen[a.ID.String()] = true
	}
}
