// Package alerting records alerts raised by the detection engine and fans
// them out to notification channels off the detection path.
package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category identifies the rule that raised an alert.
type Category string

const (
	CategoryFailedLoginBurst       Category = "failed_login_burst"
	CategoryCommandSpam            Category = "command_spam"
	CategoryAbnormalPower          Category = "abnormal_power"
	CategoryRapidTemperatureChange Category = "rapid_temperature_change"
	CategoryUnauthorizedAccess     Category = "unauthorized_access"
)

// Categories lists every category in rule order.
func Categories() []Category {
	return []Category{
		CategoryFailedLoginBurst,
		CategoryCommandSpam,
		CategoryAbnormalPower,
		CategoryRapidTemperatureChange,
		CategoryUnauthorizedAccess,
	}
}

// Severity levels for alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity returns the severity assigned to a category.
func DefaultSeverity(c Category) Severity {
	switch c {
	case CategoryUnauthorizedAccess:
		return SeverityCritical
	case CategoryFailedLoginBurst, CategoryAbnormalPower:
		return SeverityHigh
	case CategoryCommandSpam, CategoryRapidTemperatureChange:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert is an immutable record of a rule firing.
// Timestamp is the timestamp of the event that triggered it.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"source_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Message   string    `json:"message"`
	Observed  float64   `json:"observed"`
	Threshold float64   `json:"threshold"`
}

// New builds an alert with a fresh ID and the category's default severity.
func New(category Category, ts time.Time, sourceID, actorID, message string, observed, threshold float64) Alert {
	return Alert{
		ID:        uuid.New(),
		Category:  category,
		Severity:  DefaultSeverity(category),
		Timestamp: ts,
		SourceID:  sourceID,
		ActorID:   actorID,
		Message:   message,
		Observed:  observed,
		Threshold: threshold,
	}
}

// String renders the alert as a single log line.
func (a Alert) String() string {
	return fmt.Sprintf("[ALERT] %s - %s", a.Timestamp.Format(time.RFC3339), a.Message)
}
