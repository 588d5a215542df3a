// Package schema defines the event model consumed by the detection engine.
// Every inbound event is normalized to an Event carrying a typed payload
// before it reaches a rule.
package schema

import (
	"time"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindLoginAttempt       Kind = "login_attempt"
	KindToggleDevice       Kind = "toggle_device"
	KindPowerReading       Kind = "power_reading"
	KindTemperatureChange  Kind = "temperature_change"
	KindUnauthorizedAccess Kind = "unauthorized_access"
)

// IsKnown reports whether k is one of the enumerated kinds.
func (k Kind) IsKnown() bool {
	switch k {
	case KindLoginAttempt, KindToggleDevice, KindPowerReading,
		KindTemperatureChange, KindUnauthorizedAccess:
		return true
	}
	return false
}

// Role is the role of the actor behind an event. Comparison is exact.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// Payload is the kind-specific part of an event. The set of payloads is
// closed: only types in this package implement it.
type Payload interface {
	Kind() Kind
	payload()
}

// LoginAttempt reports an authentication attempt.
// A nil Success is treated as a successful attempt.
type LoginAttempt struct {
	Success *bool
}

// DeviceToggle reports a device command such as switching it on or off.
type DeviceToggle struct{}

// PowerReading carries a power sensor sample. A nil Value is treated as 0.
type PowerReading struct {
	Value *float64
}

// TemperatureChange reports a thermostat setpoint change.
type TemperatureChange struct{}

// AccessRequest reports a request for a protected resource.
// A nil Resource is treated as the empty, non-privileged resource.
type AccessRequest struct {
	Resource *string
}

// Unrecognized carries any event kind outside the enumerated set.
type Unrecognized struct {
	Name string
}

func (LoginAttempt) Kind() Kind      { return KindLoginAttempt }
func (DeviceToggle) Kind() Kind      { return KindToggleDevice }
func (PowerReading) Kind() Kind      { return KindPowerReading }
func (TemperatureChange) Kind() Kind { return KindTemperatureChange }
func (AccessRequest) Kind() Kind     { return KindUnauthorizedAccess }
func (u Unrecognized) Kind() Kind    { return Kind(u.Name) }

func (LoginAttempt) payload()      {}
func (DeviceToggle) payload()      {}
func (PowerReading) payload()      {}
func (TemperatureChange) payload() {}
func (AccessRequest) payload()     {}
func (Unrecognized) payload()      {}

// Event is a single observation from a fleet source.
type Event struct {
	ActorRole Role
	ActorID   string
	SourceID  string
	Timestamp time.Time
	Payload   Payload
}

// Kind returns the kind of the event's payload, or "" if it has none.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Bool returns a pointer to b, for building payloads.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for building payloads.
func Float(f float64) *float64 { return &f }

// String returns a pointer to s, for building payloads.
func String(s string) *string { return &s }
