package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Strategy selects how the read/response timeout is enforced.
type Strategy int

const (
	// StrategyIdleRead fails the request when no bytes arrive within ReadTimeout
	// after the request is written. The window restarts whenever data arrives.
	StrategyIdleRead Strategy = iota
	// StrategyWholeResponse bounds the time from request written to body fully received.
	StrategyWholeResponse
)

func (s Strategy) String() string {
	switch s {
	case StrategyIdleRead:
		return "idle_read"
	case StrategyWholeResponse:
		return "whole_response"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a config value onto a Strategy. Empty means idle_read.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "idle_read", "idle-read":
		return StrategyIdleRead, nil
	case "whole_response", "whole-response":
		return StrategyWholeResponse, nil
	default:
		return 0, fmt.Errorf("unknown timeout strategy %q", raw)
	}
}

// Config describes a client. It is copied into the client on New and never mutated.
// A zero timeout disables the corresponding bound.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Strategy       Strategy
}

// ConfigFromMillis builds a Config from millisecond values as found in config files.
func ConfigFromMillis(baseURL string, connectMs, readMs int64, strategy Strategy) Config {
	return Config{
		BaseURL:        baseURL,
		ConnectTimeout: time.Duration(connectMs) * time.Millisecond,
		ReadTimeout:    time.Duration(readMs) * time.Millisecond,
		Strategy:       strategy,
	}
}

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid client config")

// ConfigError reports a rejected Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid client config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func (c Config) normalize() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	return c
}

func (c Config) validate() error {
	if c.ConnectTimeout < 0 {
		return &ConfigError{Field: "connect timeout", Reason: "must not be negative"}
	}
	if c.ReadTimeout < 0 {
		return &ConfigError{Field: "read timeout", Reason: "must not be negative"}
	}
	if c.Strategy != StrategyIdleRead && c.Strategy != StrategyWholeResponse {
		return &ConfigError{Field: "strategy", Reason: fmt.Sprintf("%s is not supported", c.Strategy)}
	}
	if c.BaseURL == "" {
		return &ConfigError{Field: "base url", Reason: "is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &ConfigError{Field: "base url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "base url", Reason: fmt.Sprintf("scheme %q is not http or https", u.Scheme)}
	}
	if u.Host == "" {
		return &ConfigError{Field: "base url", Reason: "has no host"}
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || strings.Contains(c.BaseURL, "#") {
		return &ConfigError{Field: "base url", Reason: "must not carry a query or fragment"}
	}
	return nil
}

// requestSpec is the per-call request description.
type requestSpec struct {
	Method string
	URL    string
	Accept string
}

func newRequestSpec(baseURL, path, accept string) requestSpec {
	return requestSpec{
		Method: "GET",
		URL:    JoinURL(baseURL, path),
		Accept: strings.TrimSpace(accept),
	}
}

// JoinURL appends path to baseURL with exactly one "/" between them. An empty
// path yields baseURL itself. Query strings belong in path, never in baseURL.
func JoinURL(baseURL, path string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if path = strings.TrimSpace(path); path != "" {
		u += "/" + strings.TrimLeft(path, "/")
	}
	return u
}
