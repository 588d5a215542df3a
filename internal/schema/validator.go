package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// kindPattern defines the valid format for event kind tokens.
// Kinds are lowercase, start with a letter, and use underscores as separators.
// Unknown kinds that match the format are accepted and treated as benign.
var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validator checks envelopes at the transport boundary, before they are
// handed to the detection engine.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
	now       func() time.Time
}

// ValidatorConfig holds configuration for the validator.
// A zero MaxAge or MaxFuture disables the corresponding bound, so
// historical replays are accepted by default.
type ValidatorConfig struct {
	MaxAge    time.Duration `yaml:"max_age"`
	MaxFuture time.Duration `yaml:"max_future"`
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New()

	v.RegisterValidation("kind_format", func(fl validator.FieldLevel) bool {
		return ValidKind(fl.Field().String())
	})

	return &Validator{
		validate:  v,
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
		now:       time.Now,
	}
}

// Validate validates an envelope. Context values are not checked here;
// the decoder substitutes defaults for those.
func (v *Validator) Validate(env *Envelope) error {
	if err := v.validate.Struct(env); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if env.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	now := v.now().UTC()
	if v.maxAge > 0 && env.Timestamp.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", env.Timestamp, v.maxAge)
	}
	if v.maxFuture > 0 && env.Timestamp.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", env.Timestamp, v.maxFuture)
	}

	return nil
}

// ValidKind checks if a kind token matches the required format.
func ValidKind(kind string) bool {
	return kindPattern.MatchString(kind)
}
