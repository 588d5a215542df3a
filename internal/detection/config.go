package detection

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fleet-sentinel/internal/schema"

	"gopkg.in/yaml.v3"
)

// AverageMode selects which samples the power rule averages.
type AverageMode string

const (
	// AverageInclusive averages the window after the current reading has
	// been appended, so a reading contributes to its own threshold.
	AverageInclusive AverageMode = "inclusive"
	// AveragePrior averages only the readings seen before the current one.
	AveragePrior AverageMode = "prior"
)

// Config holds the parameters of every rule.
type Config struct {
	FailedLogin        FailedLoginConfig        `yaml:"failed_login"`
	CommandSpam        CommandSpamConfig        `yaml:"command_spam"`
	AbnormalPower      AbnormalPowerConfig      `yaml:"abnormal_power"`
	RapidTemperature   RapidTemperatureConfig   `yaml:"rapid_temperature"`
	UnauthorizedAccess UnauthorizedAccessConfig `yaml:"unauthorized_access"`
}

// FailedLoginConfig configures the failed-login burst rule.
type FailedLoginConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
}

// CommandSpamConfig configures the device command spam rule.
type CommandSpamConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Window      time.Duration `yaml:"window"`
	Threshold   int           `yaml:"threshold"`
	ExemptRoles []schema.Role `yaml:"exempt_roles"`
}

// AbnormalPowerConfig configures the power reading rule.
type AbnormalPowerConfig struct {
	Enabled     bool        `yaml:"enabled"`
	MaxSamples  int         `yaml:"max_samples"`
	Multiplier  float64     `yaml:"multiplier"`
	AverageMode AverageMode `yaml:"average_mode"`
}

// RapidTemperatureConfig configures the rapid temperature change rule.
// KeySuffix keeps its windows apart from command spam windows of the same source.
type RapidTemperatureConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
	KeySuffix string        `yaml:"key_suffix"`
}

// UnauthorizedAccessConfig configures the privileged resource rule.
type UnauthorizedAccessConfig struct {
	Enabled             bool          `yaml:"enabled"`
	PrivilegedResources []string      `yaml:"privileged_resources"`
	AllowedRoles        []schema.Role `yaml:"allowed_roles"`
}

// DefaultConfig returns the stock rule parameters.
func DefaultConfig() Config {
	return Config{
		FailedLogin: FailedLoginConfig{
			Enabled:   true,
			Window:    60 * time.Second,
			Threshold: 5,
		},
		CommandSpam: CommandSpamConfig{
			Enabled:     true,
			Window:      30 * time.Second,
			Threshold:   10,
			ExemptRoles: []schema.Role{schema.RoleAdmin, schema.RoleManager},
		},
		AbnormalPower: AbnormalPowerConfig{
			Enabled:     true,
			MaxSamples:  50,
			Multiplier:  1.5,
			AverageMode: AverageInclusive,
		},
		RapidTemperature: RapidTemperatureConfig{
			Enabled:   true,
			Window:    20 * time.Second,
			Threshold: 5,
			KeySuffix: "::temp",
		},
		UnauthorizedAccess: UnauthorizedAccessConfig{
			Enabled:             true,
			PrivilegedResources: []string{"security_camera", "admin_panel"},
			AllowedRoles:        []schema.Role{schema.RoleAdmin},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.FailedLogin.Window <= 0 {
		errs = append(errs, fmt.Errorf("failed_login.window must be positive"))
	}
	if c.FailedLogin.Threshold < 0 {
		errs = append(errs, fmt.Errorf("failed_login.threshold must not be negative"))
	}

	if c.CommandSpam.Window <= 0 {
		errs = append(errs, fmt.Errorf("command_spam.window must be positive"))
	}
	if c.CommandSpam.Threshold < 0 {
		errs = append(errs, fmt.Errorf("command_spam.threshold must not be negative"))
	}

	if c.AbnormalPower.MaxSamples <= 0 {
		errs = append(errs, fmt.Errorf("abnormal_power.max_samples must be positive"))
	}
	if c.AbnormalPower.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("abnormal_power.multiplier must be positive"))
	}
	switch c.AbnormalPower.AverageMode {
	case AverageInclusive, AveragePrior:
	default:
		errs = append(errs, fmt.Errorf("abnormal_power.average_mode must be %q or %q, got %q",
			AverageInclusive, AveragePrior, c.AbnormalPower.AverageMode))
	}

	if c.RapidTemperature.Window <= 0 {
		errs = append(errs, fmt.Errorf("rapid_temperature.window must be positive"))
	}
	if c.RapidTemperature.Threshold < 0 {
		errs = append(errs, fmt.Errorf("rapid_temperature.threshold must not be negative"))
	}
	if c.RapidTemperature.KeySuffix == "" {
		errs = append(errs, fmt.Errorf("rapid_temperature.key_suffix is required"))
	}

	for i, r := range c.UnauthorizedAccess.PrivilegedResources {
		if r == "" {
			errs = append(errs, fmt.Errorf("unauthorized_access.privileged_resources[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// ParseConfig parses YAML rule configuration on top of DefaultConfig and
// validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse detection config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid detection config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses a detection config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseConfig(data)
}

func containsRole(roles []schema.Role, role schema.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
