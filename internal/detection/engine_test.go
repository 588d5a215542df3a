package detection

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/metrics"
	"fleet-sentinel/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *alerting.Sink) {
	t.Helper()
	sink := alerting.NewSink()
	engine, err := NewEngine(cfg, sink)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine, sink
}

func login(source string, ts time.Time, success bool) schema.Event {
	return schema.Event{
		ActorRole: schema.RoleUser,
		ActorID:   "u1",
		SourceID:  source,
		Timestamp: ts,
		Payload:   schema.LoginAttempt{Success: schema.Bool(success)},
	}
}

func toggle(source string, role schema.Role, ts time.Time) schema.Event {
	return schema.Event{ActorRole: role, ActorID: "u2", SourceID: source, Timestamp: ts, Payload: schema.DeviceToggle{}}
}

func power(source string, v float64) schema.Event {
	return schema.Event{ActorRole: schema.RoleUser, ActorID: "u3", SourceID: source, Timestamp: t0, Payload: schema.PowerReading{Value: schema.Float(v)}}
}

func tempChange(source string, ts time.Time) schema.Event {
	return schema.Event{ActorRole: schema.RoleUser, ActorID: "u4", SourceID: source, Timestamp: ts, Payload: schema.TemperatureChange{}}
}

func access(role schema.Role, resource string) schema.Event {
	return schema.Event{ActorRole: role, ActorID: "u5", SourceID: "ipX", Timestamp: t0, Payload: schema.AccessRequest{Resource: schema.String(resource)}}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(DefaultConfig(), nil); err == nil {
		t.Error("NewEngine() should require a sink")
	}

	cfg := DefaultConfig()
	cfg.FailedLogin.Window = 0
	if _, err := NewEngine(cfg, alerting.NewSink()); err == nil {
		t.Error("NewEngine() should reject an invalid config")
	}
}

func TestFailedLoginBurst(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		spacing    time.Duration
		wantAlerts int
	}{
		{"five failures do not alert", 5, time.Second, 0},
		{"six failures alert once", 6, 5 * time.Second, 1},
		{"seven failures keep alerting", 7, time.Second, 2},
		{"failures spread beyond window", 10, 20 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sink := newTestEngine(t, DefaultConfig())
			var last *alerting.Alert
			for i := 0; i < tt.failures; i++ {
				last = engine.Instrument(login("ip2", t0.Add(time.Duration(i)*tt.spacing), false))
			}

			if got := len(sink.ByCategory(alerting.CategoryFailedLoginBurst)); got != tt.wantAlerts {
				t.Fatalf("alerts = %d, want %d", got, tt.wantAlerts)
			}
			if tt.wantAlerts > 0 {
				if last == nil {
					t.Fatal("triggering event should return the alert")
				}
				wantTS := t0.Add(time.Duration(tt.failures-1) * tt.spacing)
				if !last.Timestamp.Equal(wantTS) {
					t.Errorf("alert timestamp = %v, want %v", last.Timestamp, wantTS)
				}
				if last.Message != "Too many failed login attempts from: ip2" {
					t.Errorf("Message = %q", last.Message)
				}
			}
		})
	}
}

func TestFailedLoginBurst_SuccessesIgnored(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	for i := 0; i < 5; i++ {
		engine.Instrument(login("ip1", t0.Add(time.Duration(i)*time.Second), false))
	}
	for i := 0; i < 100; i++ {
		if a := engine.Instrument(login("ip1", t0.Add(5*time.Second), true)); a != nil {
			t.Fatal("successful login raised an alert")
		}
	}
	if got := engine.WindowSize(alerting.CategoryFailedLoginBurst, "ip1"); got != 5 {
		t.Fatalf("window size after successes = %d, want 5", got)
	}

	a := engine.Instrument(login("ip1", t0.Add(6*time.Second), false))
	if a == nil {
		t.Fatal("sixth failure should alert")
	}
	if a.Observed != 6 || a.Threshold != 5 {
		t.Errorf("Observed/Threshold = %v/%v, want 6/5", a.Observed, a.Threshold)
	}
	if sink.Len() != 1 {
		t.Errorf("sink holds %d alerts, want 1", sink.Len())
	}
}

func TestFailedLoginBurst_EvictionBoundary(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultConfig())

	for i := 0; i < 5; i++ {
		engine.Instrument(login("ip", t0, false))
	}

	// Exactly one window later the first five are still inside it.
	if a := engine.Instrument(login("ip", t0.Add(60*time.Second), false)); a == nil {
		t.Error("samples exactly 60s old should be retained")
	}

	engine.Reset()
	for i := 0; i < 5; i++ {
		engine.Instrument(login("ip", t0, false))
	}
	if a := engine.Instrument(login("ip", t0.Add(60*time.Second+time.Millisecond), false)); a != nil {
		t.Error("samples more than 60s old should be evicted")
	}
	if got := engine.WindowSize(alerting.CategoryFailedLoginBurst, "ip"); got != 1 {
		t.Errorf("window size = %d, want 1", got)
	}
}

func TestCommandSpam(t *testing.T) {
	tests := []struct {
		name       string
		role       schema.Role
		wantAlerts int
		wantSize   int
	}{
		{"user triggers", schema.RoleUser, 1, 11},
		{"admin exempt", schema.RoleAdmin, 0, 0},
		{"manager exempt", schema.RoleManager, 0, 0},
		{"lowercase admin is not exempt", schema.Role("admin"), 1, 11},
		{"empty role is not exempt", schema.Role(""), 1, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sink := newTestEngine(t, DefaultConfig())
			for i := 0; i < 11; i++ {
				engine.Instrument(toggle("dev2", tt.role, t0.Add(time.Duration(i)*time.Second)))
			}
			if got := len(sink.ByCategory(alerting.CategoryCommandSpam)); got != tt.wantAlerts {
				t.Errorf("alerts = %d, want %d", got, tt.wantAlerts)
			}
			if got := engine.WindowSize(alerting.CategoryCommandSpam, "dev2"); got != tt.wantSize {
				t.Errorf("window size = %d, want %d", got, tt.wantSize)
			}
		})
	}
}

func TestCommandSpam_Window(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	// 11 toggles spaced 3.1s apart span 31s, so the first has left the window.
	for i := 0; i < 11; i++ {
		engine.Instrument(toggle("dev1", schema.RoleUser, t0.Add(time.Duration(i)*3100*time.Millisecond)))
	}
	if sink.Len() != 0 {
		t.Errorf("alerts = %d, want 0", sink.Len())
	}
}

func TestAbnormalPower(t *testing.T) {
	tests := []struct {
		name      string
		last      float64
		wantAlert bool
	}{
		{"spike alerts", 200, true},
		{"steady does not alert", 100, false},
		{"just above threshold alerts", 155, true},
		{"negative alerts", -1, true},
		{"zero does not alert", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, DefaultConfig())
			for i := 0; i < 50; i++ {
				if a := engine.Instrument(power("powerDev", 100)); a != nil {
					t.Fatalf("steady reading %d raised an alert", i)
				}
			}
			a := engine.Instrument(power("powerDev", tt.last))
			if (a != nil) != tt.wantAlert {
				t.Fatalf("alert = %v, want %v", a != nil, tt.wantAlert)
			}
			if got := engine.WindowSize(alerting.CategoryAbnormalPower, "powerDev"); got != 50 {
				t.Errorf("window size = %d, want 50", got)
			}
		})
	}
}

func TestAbnormalPower_Message(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultConfig())
	for i := 0; i < 50; i++ {
		engine.Instrument(power("powerDev", 100))
	}

	a := engine.Instrument(power("powerDev", 200))
	if a == nil {
		t.Fatal("expected alert")
	}
	if a.Message != "Abnormal power reading from: powerDev - value: 200.0" {
		t.Errorf("Message = %q", a.Message)
	}
	// Inclusive mean of 49x100 and 200 is 102, so the limit is 153.
	if math.Abs(a.Threshold-153) > 1e-9 {
		t.Errorf("Threshold = %v, want 153", a.Threshold)
	}
}

func TestAbnormalPower_FirstReading(t *testing.T) {
	for _, mode := range []AverageMode{AverageInclusive, AveragePrior} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AbnormalPower.AverageMode = mode
			engine, _ := newTestEngine(t, cfg)

			if a := engine.Instrument(power("fresh", 1000)); a != nil {
				t.Error("a first positive reading has no baseline and must not alert")
			}
			if a := engine.Instrument(power("fresh2", -5)); a == nil {
				t.Error("a negative reading always alerts")
			}
		})
	}
}

func TestAbnormalPower_PriorMode(t *testing.T) {
	inclusive, _ := newTestEngine(t, DefaultConfig())

	cfg := DefaultConfig()
	cfg.AbnormalPower.AverageMode = AveragePrior
	prior, _ := newTestEngine(t, cfg)

	// With one prior reading of 100, a reading of 200 is 2x the prior mean
	// but only 1.33x the inclusive mean of 150.
	for _, e := range []*Engine{inclusive, prior} {
		e.Instrument(power("d", 100))
	}
	if a := inclusive.Instrument(power("d", 200)); a != nil {
		t.Error("inclusive mode should not alert on 200 after 100")
	}
	a := prior.Instrument(power("d", 200))
	if a == nil {
		t.Fatal("prior mode should alert on 200 after 100")
	}
	if a.Threshold != 150 {
		t.Errorf("Threshold = %v, want 150", a.Threshold)
	}
}

func TestRapidTemperatureChange(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	var alerts int
	for i := 0; i < 6; i++ {
		if engine.Instrument(tempChange("thermo1", t0.Add(time.Duration(i)*3*time.Second))) != nil {
			alerts++
		}
	}
	if alerts != 1 {
		t.Errorf("alerts = %d, want 1", alerts)
	}
	got := sink.ByCategory(alerting.CategoryRapidTemperatureChange)
	if len(got) != 1 || got[0].Message != "Rapid temperature control changes from: thermo1" {
		t.Errorf("alerts = %+v", got)
	}

	// Admins get no exemption.
	engine.Reset()
	for i := 0; i < 6; i++ {
		ev := tempChange("thermo2", t0)
		ev.ActorRole = schema.RoleAdmin
		engine.Instrument(ev)
	}
	if got := len(sink.ByCategory(alerting.CategoryRapidTemperatureChange)); got != 2 {
		t.Errorf("alerts after admin burst = %d, want 2", got)
	}
}

func TestTemperatureAndCommandWindowsIndependent(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	for i := 0; i < 6; i++ {
		engine.Instrument(tempChange("shared", t0.Add(time.Duration(i)*time.Second)))
	}
	if got := engine.WindowSize(alerting.CategoryCommandSpam, "shared"); got != 0 {
		t.Errorf("command window size = %d after temperature burst, want 0", got)
	}

	for i := 0; i < 10; i++ {
		engine.Instrument(toggle("shared", schema.RoleUser, t0.Add(time.Duration(i)*time.Second)))
	}
	if got := len(sink.ByCategory(alerting.CategoryCommandSpam)); got != 0 {
		t.Errorf("command spam alerts = %d, want 0 (temperature events must not count)", got)
	}
	if got := engine.WindowSize(alerting.CategoryRapidTemperatureChange, "shared"); got != 6 {
		t.Errorf("temperature window size = %d, want 6", got)
	}
}

func TestUnauthorizedAccess(t *testing.T) {
	tests := []struct {
		name      string
		role      schema.Role
		resource  string
		wantAlert bool
	}{
		{"user on camera", schema.RoleUser, "security_camera", true},
		{"manager on admin panel", schema.RoleManager, "admin_panel", true},
		{"admin on camera", schema.RoleAdmin, "security_camera", false},
		{"user on thermostat", schema.RoleUser, "thermostat", false},
		{"admin on thermostat", schema.RoleAdmin, "thermostat", false},
		{"user on empty resource", schema.RoleUser, "", false},
		{"case differs", schema.RoleUser, "Security_Camera", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, DefaultConfig())
			a := engine.Instrument(access(tt.role, tt.resource))
			if (a != nil) != tt.wantAlert {
				t.Fatalf("alert = %v, want %v", a != nil, tt.wantAlert)
			}
			if a != nil && a.Message != "Unauthorized access attempt by user: u5" {
				t.Errorf("Message = %q", a.Message)
			}
		})
	}
}

func TestUnrecognizedKind(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	if a := engine.InstrumentRaw("firmware_update", schema.RoleUser, "u1", "dev", t0, nil); a != nil {
		t.Error("unrecognized kinds must not alert")
	}
	if a := engine.Instrument(schema.Event{SourceID: "dev", Timestamp: t0}); a != nil {
		t.Error("events without payload must not alert")
	}
	if sink.Len() != 0 {
		t.Errorf("sink holds %d alerts, want 0", sink.Len())
	}
	if s := engine.Stats(); s != (Stats{}) {
		t.Errorf("Stats() = %+v, want no tracked keys", s)
	}
}

func TestUnrecognizedKinds_ShareMetricSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDetection(reg)
	engine, err := NewEngine(DefaultConfig(), alerting.NewSink(), WithMetrics(m))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	for i := 0; i < 200; i++ {
		engine.InstrumentEnvelope(schema.Envelope{
			Kind:      fmt.Sprintf("junk_%d", i),
			SourceID:  "dev",
			Timestamp: t0,
		})
	}
	engine.Instrument(login("ip1", t0, true))
	engine.Instrument(schema.Event{SourceID: "dev", Timestamp: t0})

	tests := []struct {
		name string
		c    prometheus.Collector
	}{
		{"events_total", m.EventsTotal},
		{"evaluation_seconds", m.EvalDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// unrecognized, login_attempt and none
			if n := testutil.CollectAndCount(tt.c); n != 3 {
				t.Errorf("series = %d, want 3", n)
			}
		})
	}

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("unrecognized")); got != 200 {
		t.Errorf("unrecognized events = %v, want 200", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("login_attempt")); got != 1 {
		t.Errorf("login_attempt events = %v, want 1", got)
	}
}

func TestSafeDefaults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDetection(reg)
	sink := alerting.NewSink()
	engine, err := NewEngine(DefaultConfig(), sink, WithMetrics(m))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	t.Run("missing success counts as success", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			engine.InstrumentRaw("login_attempt", schema.RoleUser, "u1", "ipM", t0, map[string]any{})
		}
		if got := engine.WindowSize(alerting.CategoryFailedLoginBurst, "ipM"); got != 0 {
			t.Errorf("window size = %d, want 0", got)
		}
		if got := testutil.ToFloat64(m.DefaultsTotal.WithLabelValues("success", "missing")); got != 10 {
			t.Errorf("defaults{success,missing} = %v, want 10", got)
		}
	})

	t.Run("wrong type success counts once as invalid_type", func(t *testing.T) {
		engine.InstrumentRaw("login_attempt", schema.RoleUser, "u1", "ipT", t0, map[string]any{"success": "false"})
		if got := engine.WindowSize(alerting.CategoryFailedLoginBurst, "ipT"); got != 0 {
			t.Errorf("window size = %d, want 0", got)
		}
		if got := testutil.ToFloat64(m.DefaultsTotal.WithLabelValues("success", "invalid_type")); got != 1 {
			t.Errorf("defaults{success,invalid_type} = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.DefaultsTotal.WithLabelValues("success", "missing")); got != 10 {
			t.Errorf("defaults{success,missing} = %v, want 10 (no double count)", got)
		}
	})

	t.Run("missing value is zero", func(t *testing.T) {
		if a := engine.InstrumentRaw("power_reading", schema.RoleUser, "u3", "pwr", t0, nil); a != nil {
			t.Error("missing value must not alert")
		}
		if got := engine.WindowSize(alerting.CategoryAbnormalPower, "pwr"); got != 1 {
			t.Errorf("window size = %d, want 1", got)
		}
	})

	t.Run("NaN value is zero", func(t *testing.T) {
		ev := power("pwrNaN", math.NaN())
		if a := engine.Instrument(ev); a != nil {
			t.Error("NaN value must not alert")
		}
		if got := testutil.ToFloat64(m.DefaultsTotal.WithLabelValues("value", "invalid_value")); got != 1 {
			t.Errorf("defaults{value,invalid_value} = %v, want 1", got)
		}
	})

	t.Run("missing resource is not privileged", func(t *testing.T) {
		if a := engine.InstrumentRaw("unauthorized_access", schema.RoleUser, "u5", "ipX", t0, nil); a != nil {
			t.Error("missing resource must not alert")
		}
		if got := testutil.ToFloat64(m.DefaultsTotal.WithLabelValues("resource", "missing")); got != 1 {
			t.Errorf("defaults{resource,missing} = %v, want 1", got)
		}
	})

	if sink.Len() != 0 {
		t.Errorf("malformed events produced %d alerts", sink.Len())
	}
}

func TestInstrumentRaw_MatchesTyped(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	for i := 0; i < 6; i++ {
		engine.InstrumentRaw("login_attempt", schema.RoleUser, "u1", "ip2", t0.Add(time.Duration(i)*5*time.Second),
			map[string]any{"success": false})
	}
	for i := 0; i < 11; i++ {
		engine.InstrumentRaw("toggle_device", schema.RoleUser, "u2", "dev2", t0.Add(time.Duration(i)*time.Second), nil)
	}
	for i := 0; i < 50; i++ {
		engine.InstrumentRaw("power_reading", schema.RoleUser, "u3", "powerDev", t0, map[string]any{"value": 100})
	}
	engine.InstrumentRaw("power_reading", schema.RoleUser, "u3", "powerDev", t0, map[string]any{"value": 200.0})
	engine.InstrumentRaw("unauthorized_access", schema.RoleUser, "u5", "ipX", t0, map[string]any{"resource": "security_camera"})

	want := []alerting.Category{
		alerting.CategoryFailedLoginBurst,
		alerting.CategoryCommandSpam,
		alerting.CategoryAbnormalPower,
		alerting.CategoryUnauthorizedAccess,
	}
	got := sink.List()
	if len(got) != len(want) {
		t.Fatalf("alerts = %d, want %d", len(got), len(want))
	}
	for i, c := range want {
		if got[i].Category != c {
			t.Errorf("alert %d category = %s, want %s", i, got[i].Category, c)
		}
	}
}

func TestDisabledRule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandSpam.Enabled = false
	engine, sink := newTestEngine(t, cfg)

	for i := 0; i < 20; i++ {
		engine.Instrument(toggle("dev", schema.RoleUser, t0))
	}
	if sink.Len() != 0 {
		t.Errorf("disabled rule raised %d alerts", sink.Len())
	}
	if got := engine.WindowSize(alerting.CategoryCommandSpam, "dev"); got != 0 {
		t.Errorf("disabled rule window size = %d, want 0", got)
	}
}

func TestEngine_ResetAndStats(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	engine.Instrument(login("a", t0, false))
	engine.Instrument(toggle("b", schema.RoleUser, t0))
	engine.Instrument(toggle("c", schema.RoleUser, t0))
	engine.Instrument(power("d", 1))
	engine.Instrument(tempChange("e", t0))
	engine.Instrument(access(schema.RoleUser, "admin_panel"))

	want := Stats{FailedLoginSources: 1, CommandSpamSources: 2, PowerDevices: 1, TemperatureSources: 1}
	if got := engine.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	engine.Reset()
	if got := engine.Stats(); got != (Stats{}) {
		t.Errorf("Stats() after Reset = %+v, want zero", got)
	}
	if sink.Len() != 1 {
		t.Errorf("Reset must not clear recorded alerts, sink holds %d", sink.Len())
	}
}

func TestEnginesAreIndependent(t *testing.T) {
	a, sinkA := newTestEngine(t, DefaultConfig())
	b, sinkB := newTestEngine(t, DefaultConfig())

	for i := 0; i < 6; i++ {
		a.Instrument(login("ip", t0, false))
	}
	b.Instrument(login("ip", t0, false))

	if sinkA.Len() != 1 || sinkB.Len() != 0 {
		t.Errorf("sinkA=%d sinkB=%d, want 1 and 0", sinkA.Len(), sinkB.Len())
	}
	if got := b.WindowSize(alerting.CategoryFailedLoginBurst, "ip"); got != 1 {
		t.Errorf("engine b window size = %d, want 1", got)
	}
}

func TestConcurrentInstrument_DistinctSources(t *testing.T) {
	engine, sink := newTestEngine(t, DefaultConfig())

	const sources = 32
	const perSource = 200

	var wg sync.WaitGroup
	for s := 0; s < sources; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			src := fmt.Sprintf("dev-%d", s)
			for i := 0; i < perSource; i++ {
				// All inside one window: nothing is evicted.
				engine.Instrument(toggle(src, schema.RoleUser, t0.Add(time.Duration(i)*time.Millisecond)))
				engine.Instrument(power(src, 100))
			}
		}(s)
	}
	wg.Wait()

	for s := 0; s < sources; s++ {
		src := fmt.Sprintf("dev-%d", s)
		if got := engine.WindowSize(alerting.CategoryCommandSpam, src); got != perSource {
			t.Errorf("%s command window = %d, want %d", src, got, perSource)
		}
		if got := engine.WindowSize(alerting.CategoryAbnormalPower, src); got != 50 {
			t.Errorf("%s power window = %d, want 50", src, got)
		}
	}

	// Each source alerts on every toggle past the tenth.
	want := sources * (perSource - 10)
	if got := len(sink.ByCategory(alerting.CategoryCommandSpam)); got != want {
		t.Errorf("command spam alerts = %d, want %d", got, want)
	}
	if got := len(sink.ByCategory(alerting.CategoryAbnormalPower)); got != 0 {
		t.Errorf("power alerts = %d, want 0", got)
	}
}

func TestConcurrentInstrument_SameSource(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultConfig())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				engine.Instrument(login("shared", t0, false))
			}
		}()
	}
	wg.Wait()

	if got := engine.WindowSize(alerting.CategoryFailedLoginBurst, "shared"); got != 800 {
		t.Errorf("window size = %d, want 800", got)
	}
}

func TestFormatReading(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{200, "200.0"},
		{-1, "-1.0"},
		{0, "0.0"},
		{12.5, "12.5"},
	}
	for _, tt := range tests {
		if got := formatReading(tt.in); got != tt.want {
			t.Errorf("formatReading(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if !strings.Contains(formatReading(1e20), "e+") {
		t.Errorf("large readings should use exponent form, got %q", formatReading(1e20))
	}
}
