package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Context field names understood by the decoder.
const (
	FieldSuccess  = "success"
	FieldValue    = "value"
	FieldResource = "resource"
)

// Substitution reasons.
const (
	ReasonMissing      = "missing"
	ReasonInvalidType  = "invalid_type"
	ReasonInvalidValue = "invalid_value"
)

// Substitution records a context field that could not be used as given and
// was replaced by its safe default.
type Substitution struct {
	Field  string
	Reason string
	Raw    any
}

// Envelope is the wire form of an event as accepted over HTTP and Kafka.
type Envelope struct {
	Kind      string         `json:"kind" validate:"required,kind_format,max=64"`
	ActorRole string         `json:"actor_role,omitempty" validate:"max=64"`
	ActorID   string         `json:"actor_id,omitempty" validate:"max=256"`
	SourceID  string         `json:"source_id" validate:"required,max=256"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	Context   map[string]any `json:"context,omitempty"`
}

// Event converts the envelope to a typed event.
func (env Envelope) Event() (Event, []Substitution) {
	return Decode(env.Kind, Role(env.ActorRole), env.ActorID, env.SourceID, env.Timestamp, env.Context)
}

// Decode builds a typed event from the untyped legacy shape. Context values
// of the wrong type are dropped and reported; the payload field is left nil
// so the rule applies its safe default. Missing fields are not reported
// here, the rule reports them when it applies the default.
func Decode(kind string, role Role, actorID, sourceID string, ts time.Time, ctx map[string]any) (Event, []Substitution) {
	ev := Event{
		ActorRole: role,
		ActorID:   actorID,
		SourceID:  sourceID,
		Timestamp: ts,
	}

	var subs []Substitution
	switch Kind(kind) {
	case KindLoginAttempt:
		p := LoginAttempt{}
		if raw, ok := ctx[FieldSuccess]; ok {
			if b, ok := raw.(bool); ok {
				p.Success = &b
			} else {
				subs = append(subs, Substitution{Field: FieldSuccess, Reason: ReasonInvalidType, Raw: raw})
			}
		}
		ev.Payload = p
	case KindToggleDevice:
		ev.Payload = DeviceToggle{}
	case KindPowerReading:
		p := PowerReading{}
		if raw, ok := ctx[FieldValue]; ok {
			f, ok := toFloat64(raw)
			switch {
			case !ok:
				subs = append(subs, Substitution{Field: FieldValue, Reason: ReasonInvalidType, Raw: raw})
			case math.IsNaN(f) || math.IsInf(f, 0):
				subs = append(subs, Substitution{Field: FieldValue, Reason: ReasonInvalidValue, Raw: raw})
			default:
				p.Value = &f
			}
		}
		ev.Payload = p
	case KindTemperatureChange:
		ev.Payload = TemperatureChange{}
	case KindUnauthorizedAccess:
		p := AccessRequest{}
		if raw, ok := ctx[FieldResource]; ok {
			if s, ok := raw.(string); ok {
				p.Resource = &s
			} else {
				subs = append(subs, Substitution{Field: FieldResource, Reason: ReasonInvalidType, Raw: raw})
			}
		}
		ev.Payload = p
	default:
		ev.Payload = Unrecognized{Name: kind}
	}

	return ev, subs
}

// String implements fmt.Stringer for log output.
func (s Substitution) String() string {
	return fmt.Sprintf("%s (%s)", s.Field, s.Reason)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
