package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default token shapes. fbp accepts four or five dot-separated fields.
const (
	DefaultFBPPattern = `^fb\.\d+\.\d+\.\d+(\.\d+)?$`
	DefaultFBCPattern = `^fb\.\d+\.\d+\..+$`
)

// DefaultMillisecondThreshold separates second from millisecond timestamps.
// Unix seconds stay below it until the year 2096.
const DefaultMillisecondThreshold int64 = 4_000_000_000

// Policy configures how the normalizer validates and repairs events.
type Policy struct {
	TrustWindow          TrustWindow                `yaml:"trust_window"`
	MillisecondThreshold int64                      `yaml:"millisecond_threshold"`
	Tokens               TokenPatterns              `yaml:"tokens"`
	CommerceDefaults     map[string]CommerceDefault `yaml:"commerce_defaults"`
}

// TrustWindow bounds the client timestamps accepted unmodified.
type TrustWindow struct {
	Lookback   Duration `yaml:"lookback"`
	FutureSkew Duration `yaml:"future_skew"`
}

// Duration represents a duration in minutes for YAML configuration.
type Duration struct {
	Minutes int `yaml:"minutes"`
}

// ToDuration converts to a standard time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d.Minutes) * time.Minute
}

// TokenPatterns holds the regular expressions for browser and click ids.
type TokenPatterns struct {
	FBPPattern string `yaml:"fbp_pattern"`
	FBCPattern string `yaml:"fbc_pattern"`
}

// CommerceDefault is substituted for a missing or invalid value/currency on
// the named event.
type CommerceDefault struct {
	Value    *float64 `yaml:"value,omitempty"`
	Currency string   `yaml:"currency,omitempty"`
}

// DefaultPolicy returns a 7 day lookback, one minute of future skew, and no
// commerce defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		TrustWindow: TrustWindow{
			Lookback:   Duration{Minutes: 7 * 24 * 60},
			FutureSkew: Duration{Minutes: 1},
		},
		MillisecondThreshold: DefaultMillisecondThreshold,
		Tokens: TokenPatterns{
			FBPPattern: DefaultFBPPattern,
			FBCPattern: DefaultFBCPattern,
		},
		CommerceDefaults: map[string]CommerceDefault{},
	}
}

// ParsePolicy decodes YAML on top of DefaultPolicy and validates the result.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	if p.Tokens.FBPPattern == "" {
		p.Tokens.FBPPattern = DefaultFBPPattern
	}
	if p.Tokens.FBCPattern == "" {
		p.Tokens.FBCPattern = DefaultFBCPattern
	}
	if p.CommerceDefaults == nil {
		p.CommerceDefaults = map[string]CommerceDefault{}
	}

	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}

	return p, nil
}

// LoadPolicyFile reads and parses a policy from disk.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return ParsePolicy(data)
}
