// Package detection evaluates fleet events against per-source sliding-window
// rules and records an alert whenever a rule's threshold is crossed.
//
// The engine does no I/O and starts no goroutines: Instrument runs each
// event to completion on the caller's goroutine. Calls for different
// sources proceed in parallel; calls for the same source are serialized
// on that source's window.
package detection

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/logging"
	"fleet-sentinel/internal/metrics"
	"fleet-sentinel/internal/schema"
)

// Engine holds the rule windows and the sink alerts are recorded to.
// Independent engines share no state.
type Engine struct {
	config  Config
	sink    alerting.Recorder
	logger  *slog.Logger
	metrics *metrics.Detection

	failedLogin        *failedLoginRule
	commandSpam        *commandSpamRule
	abnormalPower      *abnormalPowerRule
	rapidTemperature   *rapidTemperatureRule
	unauthorizedAccess *unauthorizedAccessRule
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Detection) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine validates cfg and builds an engine recording to sink.
func NewEngine(cfg Config, sink alerting.Recorder, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("alert sink is required")
	}

	e := &Engine{
		config: cfg,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "detection")
	e.buildRules()
	return e, nil
}

func (e *Engine) buildRules() {
	c := e.config
	e.failedLogin = &failedLoginRule{
		burstCounter: newBurstCounter(c.FailedLogin.Window, c.FailedLogin.Threshold),
	}
	e.commandSpam = &commandSpamRule{
		burstCounter: newBurstCounter(c.CommandSpam.Window, c.CommandSpam.Threshold),
		exempt:       c.CommandSpam.ExemptRoles,
	}
	e.abnormalPower = newAbnormalPowerRule(c.AbnormalPower)
	e.rapidTemperature = &rapidTemperatureRule{
		burstCounter: newBurstCounter(c.RapidTemperature.Window, c.RapidTemperature.Threshold),
		suffix:       c.RapidTemperature.KeySuffix,
	}
	e.unauthorizedAccess = newUnauthorizedAccessRule(c.UnauthorizedAccess)
}

// Config returns the engine's rule configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Instrument evaluates ev and returns the alert it raised, or nil.
// It never fails: missing payload fields take their safe defaults and
// unrecognized kinds are logged and ignored.
func (e *Engine) Instrument(ev schema.Event) *alerting.Alert {
	return e.instrument(ev, nil)
}

// InstrumentRaw decodes an event given in its untyped form and evaluates it.
// Context values of the wrong type are replaced by their safe default.
func (e *Engine) InstrumentRaw(kind string, role schema.Role, actorID, sourceID string, ts time.Time, ctx map[string]any) *alerting.Alert {
	ev, subs := schema.Decode(kind, role, actorID, sourceID, ts, ctx)
	for _, s := range subs {
		e.reportDefault(ev, s)
	}
	return e.instrument(ev, subs)
}

// InstrumentEnvelope evaluates an event received in its wire form.
// The envelope is expected to have passed schema.Validator already.
func (e *Engine) InstrumentEnvelope(env schema.Envelope) *alerting.Alert {
	return e.InstrumentRaw(env.Kind, schema.Role(env.ActorRole), env.ActorID, env.SourceID, env.Timestamp, env.Context)
}

// unrecognizedLabel is the metric label shared by every kind outside the
// enumerated set.
const unrecognizedLabel = "unrecognized"

func (e *Engine) instrument(ev schema.Event, reported []schema.Substitution) *alerting.Alert {
	start := time.Now()
	kind := ev.Kind()

	var alert alerting.Alert
	var fired bool

	switch p := ev.Payload.(type) {
	case schema.LoginAttempt:
		if e.config.FailedLogin.Enabled {
			alert, fired = e.failedLogin.evaluate(ev, e.success(ev, p, reported))
		}
	case schema.DeviceToggle:
		if e.config.CommandSpam.Enabled {
			alert, fired = e.commandSpam.evaluate(ev)
		}
	case schema.PowerReading:
		if e.config.AbnormalPower.Enabled {
			alert, fired = e.abnormalPower.evaluate(ev, e.value(ev, p, reported))
		}
	case schema.TemperatureChange:
		if e.config.RapidTemperature.Enabled {
			alert, fired = e.rapidTemperature.evaluate(ev)
		}
	case schema.AccessRequest:
		if e.config.UnauthorizedAccess.Enabled {
			alert, fired = e.unauthorizedAccess.evaluate(ev, e.resource(ev, p, reported))
		}
	case schema.Unrecognized:
		e.logger.Info("normal event", "kind", p.Name, "source_id", ev.SourceID)
	case nil:
		e.logger.Info("event without payload", "source_id", ev.SourceID)
	}

	// Kind labels come from clients; collapse the open set to one series.
	label := string(kind)
	switch {
	case ev.Payload == nil:
		label = "none"
	case !kind.IsKnown():
		label = unrecognizedLabel
	}
	e.metrics.ObserveEvent(label, time.Since(start))

	if !fired {
		return nil
	}

	e.sink.Record(alert)
	e.metrics.IncAlert(string(alert.Category))
	e.logger.Debug("alert raised",
		"category", alert.Category,
		"source_id", alert.SourceID,
		"observed", alert.Observed,
		"threshold", alert.Threshold,
	)
	return &alert
}

// success resolves LoginAttempt.Success, defaulting to true.
func (e *Engine) success(ev schema.Event, p schema.LoginAttempt, reported []schema.Substitution) bool {
	if p.Success != nil {
		return *p.Success
	}
	e.defaultIfUnreported(ev, schema.FieldSuccess, reported)
	return true
}

// value resolves PowerReading.Value, defaulting to 0.
func (e *Engine) value(ev schema.Event, p schema.PowerReading, reported []schema.Substitution) float64 {
	if p.Value == nil {
		e.defaultIfUnreported(ev, schema.FieldValue, reported)
		return 0
	}
	if v := *p.Value; math.IsNaN(v) || math.IsInf(v, 0) {
		e.reportDefault(ev, schema.Substitution{Field: schema.FieldValue, Reason: schema.ReasonInvalidValue, Raw: v})
		return 0
	}
	return *p.Value
}

// resource resolves AccessRequest.Resource, defaulting to "".
func (e *Engine) resource(ev schema.Event, p schema.AccessRequest, reported []schema.Substitution) string {
	if p.Resource != nil {
		return *p.Resource
	}
	e.defaultIfUnreported(ev, schema.FieldResource, reported)
	return ""
}

func (e *Engine) defaultIfUnreported(ev schema.Event, field string, reported []schema.Substitution) {
	for _, s := range reported {
		if s.Field == field {
			return
		}
	}
	e.reportDefault(ev, schema.Substitution{Field: field, Reason: schema.ReasonMissing})
}

func (e *Engine) reportDefault(ev schema.Event, s schema.Substitution) {
	e.metrics.IncDefault(s.Field, s.Reason)
	e.logger.Debug("context field replaced by default",
		"kind", ev.Kind(),
		"source_id", ev.SourceID,
		"field", s.Field,
		"reason", s.Reason,
		"raw", logging.SafeLogValue(s.Field, s.Raw),
	)
}

// Reset discards all window state. Recorded alerts are kept by the sink.
func (e *Engine) Reset() {
	e.failedLogin.store.Reset()
	e.commandSpam.store.Reset()
	e.abnormalPower.store.Reset()
	e.rapidTemperature.store.Reset()
	e.logger.Info("detection state reset")
}

// Stats reports how many keys each windowed rule is tracking.
type Stats struct {
	FailedLoginSources int `json:"failed_login_sources"`
	CommandSpamSources int `json:"command_spam_sources"`
	PowerDevices       int `json:"power_devices"`
	TemperatureSources int `json:"temperature_sources"`
}

// Stats returns current window statistics and publishes them as gauges.
func (e *Engine) Stats() Stats {
	s := Stats{
		FailedLoginSources: e.failedLogin.store.Len(),
		CommandSpamSources: e.commandSpam.store.Len(),
		PowerDevices:       e.abnormalPower.store.Len(),
		TemperatureSources: e.rapidTemperature.store.Len(),
	}
	e.metrics.SetTrackedSources(string(alerting.CategoryFailedLoginBurst), s.FailedLoginSources)
	e.metrics.SetTrackedSources(string(alerting.CategoryCommandSpam), s.CommandSpamSources)
	e.metrics.SetTrackedSources(string(alerting.CategoryAbnormalPower), s.PowerDevices)
	e.metrics.SetTrackedSources(string(alerting.CategoryRapidTemperatureChange), s.TemperatureSources)
	return s
}

// WindowSize returns the number of samples the rule for category holds for
// sourceID. Stateless rules always report 0.
func (e *Engine) WindowSize(category alerting.Category, sourceID string) int {
	switch category {
	case alerting.CategoryFailedLoginBurst:
		return e.failedLogin.store.Size(sourceID)
	case alerting.CategoryCommandSpam:
		return e.commandSpam.store.Size(sourceID)
	case alerting.CategoryAbnormalPower:
		return e.abnormalPower.store.Size(sourceID)
	case alerting.CategoryRapidTemperatureChange:
		return e.rapidTemperature.store.Size(e.rapidTemperature.key(sourceID))
	}
	return 0
}
