package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"capi-relay/internal/domain"
)

// Validate validates the application configuration. Missing Graph credentials
// are not a validation error: the handler answers 500 per request instead.
func (c *AppConfig) Validate() error {
	var errs []error

	for i, origin := range c.CORS.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			errs = append(errs, fmt.Errorf("allowed_origins[%d]: %w", i, err))
		}
	}

	if c.CORS.MaxAge < 0 {
		errs = append(errs, errors.New("cors max age must not be negative"))
	}

	if _, err := url.ParseRequestURI(c.Graph.APIEndpoint); err != nil {
		errs = append(errs, fmt.Errorf("graph api endpoint is invalid: %w", err))
	}

	if c.Graph.APIVersion == "" {
		errs = append(errs, errors.New("graph api version is required"))
	}

	if c.Graph.Timeout <= 0 {
		errs = append(errs, errors.New("graph timeout must be positive"))
	}

	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server max body bytes must be positive"))
	}

	if len(errs) > 0 {
		return &domain.ConfigError{ConfigName: "app", Err: errors.Join(errs...)}
	}

	return nil
}

// validateOrigin rejects wildcards and anything that is not scheme://host[:port].
func validateOrigin(origin string) error {
	if strings.Contains(origin, "*") {
		return fmt.Errorf("wildcard origin %q is not allowed", origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Path != "" || u.RawQuery != "" {
		return fmt.Errorf("origin %q must be scheme://host[:port]", origin)
	}
	return nil
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidatePolicy validates a normalizer policy.
func ValidatePolicy(p *Policy) error {
	var errs []error

	if p.TrustWindow.Lookback.Minutes <= 0 {
		errs = append(errs, errors.New("trust_window.lookback.minutes must be positive"))
	}

	if p.TrustWindow.FutureSkew.Minutes < 0 {
		errs = append(errs, errors.New("trust_window.future_skew.minutes must not be negative"))
	}

	if p.MillisecondThreshold <= 0 {
		errs = append(errs, errors.New("millisecond_threshold must be positive"))
	}

	for field, pattern := range map[string]string{
		"tokens.fbp_pattern": p.Tokens.FBPPattern,
		"tokens.fbc_pattern": p.Tokens.FBCPattern,
	} {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	for name, def := range p.CommerceDefaults {
		if name == "" {
			errs = append(errs, errors.New("commerce_defaults: event name is required"))
		}
		if def.Currency != "" && !currencyPattern.MatchString(def.Currency) {
			errs = append(errs, fmt.Errorf("commerce_defaults[%s].currency must be a 3-letter uppercase code", name))
		}
		if def.Value != nil && *def.Value < 0 {
			errs = append(errs, fmt.Errorf("commerce_defaults[%s].value must not be negative", name))
		}
	}

	if len(errs) > 0 {
		return &domain.ConfigError{ConfigName: "policy", Err: errors.Join(errs...)}
	}

	return nil
}
