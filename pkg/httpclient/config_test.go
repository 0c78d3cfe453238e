package httpclient

import (
	"errors"
	"testing"
	"time"
)

func TestNewRejectsNegativeTimeouts(t *testing.T) {
	cases := []Config{
		{BaseURL: "http://localhost:12345", ConnectTimeout: -time.Millisecond},
		{BaseURL: "http://localhost:12345", ReadTimeout: -time.Millisecond},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("New(%+v) error = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestNewAcceptsZeroTimeouts(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:12345/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Config().BaseURL; got != "http://localhost:12345" {
		t.Fatalf("BaseURL = %q", got)
	}
	if c.Config().ConnectTimeout != 0 || c.Config().ReadTimeout != 0 {
		t.Fatalf("zero timeouts must not be defaulted: %+v", c.Config())
	}
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:12345", "ftp://localhost", "http://"} {
		_, err := New(Config{BaseURL: raw})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "base url" {
			t.Fatalf("New(%q) error = %v, want base url ConfigError", raw, err)
		}
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://localhost", Strategy: Strategy(7)}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfigFromMillis(t *testing.T) {
	cfg := ConfigFromMillis("http://localhost:12345", 2000, 2250, StrategyWholeResponse)
	if cfg.ConnectTimeout != 2*time.Second || cfg.ReadTimeout != 2250*time.Millisecond {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.Strategy != StrategyWholeResponse {
		t.Fatalf("strategy = %s", cfg.Strategy)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"":               StrategyIdleRead,
		"idle_read":      StrategyIdleRead,
		" IDLE-READ ":    StrategyIdleRead,
		"whole_response": StrategyWholeResponse,
		"whole-response": StrategyWholeResponse,
	}
	for raw, want := range cases {
		got, err := ParseStrategy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}
	if _, err := ParseStrategy("forever"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestNewRequestSpecJoinsPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/ping", "http://localhost:12345/ping"},
		{"ping", "http://localhost:12345/ping"},
		{"", "http://localhost:12345"},
		{"/ping?x=1", "http://localhost:12345/ping?x=1"},
	}
	for _, tc := range cases {
		rs := newRequestSpec("http://localhost:12345", tc.path, " text/plain ")
		if rs.URL != tc.want {
			t.Fatalf("path %q: URL = %q, want %q", tc.path, rs.URL, tc.want)
		}
		if rs.Method != "GET" || rs.Accept != "text/plain" {
			t.Fatalf("unexpected request %+v", rs)
		}
	}
}

func TestNewRejectsBaseURLWithQueryOrFragment(t *testing.T) {
	for _, raw := range []string{"http://h/api?x=1", "http://h/api?", "http://h/api#top"} {
		_, err := New(Config{BaseURL: raw})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("New(%q) error = %v, want ErrInvalidConfig", raw, err)
		}
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://h/api/", "/ping", "http://h/api/ping"},
		{"http://h", "ping?x=1", "http://h/ping?x=1"},
		{"http://h/", "", "http://h"},
		{"http://h", "/", "http://h/"},
	}
	for _, tc := range cases {
		if got := JoinURL(tc.base, tc.path); got != tc.want {
			t.Fatalf("JoinURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}
