package detection

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/schema"
	"fleet-sentinel/internal/window"
)

// burstCounter counts events per key over a sliding time window anchored on
// the timestamp of the event being evaluated.
type burstCounter struct {
	store     *window.Store[time.Time]
	window    time.Duration
	threshold int
}

func newBurstCounter(w time.Duration, threshold int) *burstCounter {
	return &burstCounter{
		store:     window.NewStore[time.Time](),
		window:    w,
		threshold: threshold,
	}
}

// observe appends ts to key's window, evicts what fell out of the window
// and reports the resulting count and whether it exceeds the threshold.
func (b *burstCounter) observe(key string, ts time.Time) (int, bool) {
	var n int
	b.store.Update(key, func(w *window.Window[time.Time]) {
		w.Append(ts)
		w.EvictOlderThan(ts, b.window, window.Instant)
		n = w.Len()
	})
	return n, n > b.threshold
}

// failedLoginRule flags sources with too many failed logins.
// Successful attempts never touch the window.
type failedLoginRule struct {
	*burstCounter
}

func (r *failedLoginRule) evaluate(ev schema.Event, success bool) (alerting.Alert, bool) {
	if success {
		return alerting.Alert{}, false
	}
	n, fire := r.observe(ev.SourceID, ev.Timestamp)
	if !fire {
		return alerting.Alert{}, false
	}
	return alerting.New(alerting.CategoryFailedLoginBurst, ev.Timestamp, ev.SourceID, ev.ActorID,
		"Too many failed login attempts from: "+ev.SourceID,
		float64(n), float64(r.threshold)), true
}

// commandSpamRule flags sources issuing too many device commands.
// Exempt roles are skipped before the window is touched.
type commandSpamRule struct {
	*burstCounter
	exempt []schema.Role
}

func (r *commandSpamRule) evaluate(ev schema.Event) (alerting.Alert, bool) {
	if containsRole(r.exempt, ev.ActorRole) {
		return alerting.Alert{}, false
	}
	n, fire := r.observe(ev.SourceID, ev.Timestamp)
	if !fire {
		return alerting.Alert{}, false
	}
	return alerting.New(alerting.CategoryCommandSpam, ev.Timestamp, ev.SourceID, ev.ActorID,
		"Device spam detected from: "+ev.SourceID,
		float64(n), float64(r.threshold)), true
}

// rapidTemperatureRule flags sources changing thermostat settings too often.
type rapidTemperatureRule struct {
	*burstCounter
	suffix string
}

func (r *rapidTemperatureRule) key(sourceID string) string {
	return sourceID + r.suffix
}

func (r *rapidTemperatureRule) evaluate(ev schema.Event) (alerting.Alert, bool) {
	n, fire := r.observe(r.key(ev.SourceID), ev.Timestamp)
	if !fire {
		return alerting.Alert{}, false
	}
	return alerting.New(alerting.CategoryRapidTemperatureChange, ev.Timestamp, ev.SourceID, ev.ActorID,
		"Rapid temperature control changes from: "+ev.SourceID,
		float64(n), float64(r.threshold)), true
}

// abnormalPowerRule flags negative readings and readings well above the
// device's rolling mean.
type abnormalPowerRule struct {
	store      *window.Store[float64]
	maxSamples int
	multiplier float64
	mode       AverageMode
}

func newAbnormalPowerRule(cfg AbnormalPowerConfig) *abnormalPowerRule {
	return &abnormalPowerRule{
		store:      window.NewStore[float64](),
		maxSamples: cfg.MaxSamples,
		multiplier: cfg.Multiplier,
		mode:       cfg.AverageMode,
	}
}

func (r *abnormalPowerRule) evaluate(ev schema.Event, value float64) (alerting.Alert, bool) {
	var avg float64
	var havePrior bool

	r.store.Update(ev.SourceID, func(w *window.Window[float64]) {
		if r.mode == AveragePrior {
			havePrior = w.Len() > 0
			avg = w.Average(window.Reading)
		}
		w.Append(value)
		w.EvictToMaxCount(r.maxSamples)
		if r.mode == AverageInclusive {
			havePrior = true
			avg = w.Average(window.Reading)
		}
	})

	limit := r.multiplier * avg
	switch {
	case value < 0:
		limit = 0
	case havePrior && value > limit:
	default:
		return alerting.Alert{}, false
	}

	return alerting.New(alerting.CategoryAbnormalPower, ev.Timestamp, ev.SourceID, ev.ActorID,
		fmt.Sprintf("Abnormal power reading from: %s - value: %s", ev.SourceID, formatReading(value)),
		value, limit), true
}

// formatReading renders whole readings with one decimal place ("200.0").
func formatReading(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// unauthorizedAccessRule flags privileged resource requests from roles
// that are not allowed to make them. It keeps no state.
type unauthorizedAccessRule struct {
	privileged map[string]bool
	allowed    []schema.Role
}

func newUnauthorizedAccessRule(cfg UnauthorizedAccessConfig) *unauthorizedAccessRule {
	privileged := make(map[string]bool, len(cfg.PrivilegedResources))
	for _, r := range cfg.PrivilegedResources {
		privileged[r] = true
	}
	return &unauthorizedAccessRule{privileged: privileged, allowed: cfg.AllowedRoles}
}

func (r *unauthorizedAccessRule) evaluate(ev schema.Event, resource string) (alerting.Alert, bool) {
	if !r.privileged[resource] || containsRole(r.allowed, ev.ActorRole) {
		return alerting.Alert{}, false
	}
	return alerting.New(alerting.CategoryUnauthorizedAccess, ev.Timestamp, ev.SourceID, ev.ActorID,
		"Unauthorized access attempt by user: "+ev.ActorID,
		1, 0), true
}
