package targets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/samvad-hq/pingwatch/internal/registryfile"
	"github.com/samvad-hq/pingwatch/pkg/httpclient"
)

// Package targets loads probe target definitions (YAML/JSON).

const (
	defaultPath   = "/"
	defaultAccept = "*/*"
)

// Target is one endpoint to probe. Nil timeouts fall back to the configured
// defaults; an explicit 0 disables the bound.
type Target struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	BaseURL          string `json:"base_url" yaml:"base_url"`
	Path             string `json:"path" yaml:"path"`
	Accept           string `json:"accept" yaml:"accept"`
	ConnectTimeoutMs *int64 `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	ReadTimeoutMs    *int64 `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	Strategy         string `json:"strategy" yaml:"strategy"`
	ExpectBody       string `json:"expect_body" yaml:"expect_body"`
	Enabled          *bool  `json:"enabled" yaml:"enabled"`
}

// Defaults supplies timeout settings for targets that leave them unset.
type Defaults struct {
	ConnectTimeoutMs int64
	ReadTimeoutMs    int64
	Strategy         httpclient.Strategy
}

type fileRegistry struct {
	Targets []Target `json:"targets" yaml:"targets"`
}

// Registry holds the validated targets loaded from a file.
type Registry struct {
	mu      sync.RWMutex
	targets []Target
	idx     map[string]Target
}

// LoadRegistry loads the target registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	var fileReg fileRegistry
	if err := registryfile.Load(path, "targets", &fileReg); err != nil {
		return nil, err
	}
	return newRegistry(fileReg)
}

// ParseRegistry decodes and validates registry content. ext selects the
// decoder; an empty ext is read as YAML.
func ParseRegistry(data []byte, ext string) (*Registry, error) {
	var fileReg fileRegistry
	if err := registryfile.Decode(data, ext, "targets", &fileReg); err != nil {
		return nil, err
	}
	return newRegistry(fileReg)
}

func newRegistry(fileReg fileRegistry) (*Registry, error) {
	if len(fileReg.Targets) == 0 {
		return nil, errors.New("targets file contains no targets entries")
	}

	reg := &Registry{
		targets: make([]Target, len(fileReg.Targets)),
		idx:     make(map[string]Target, len(fileReg.Targets)),
	}
	for i := range fileReg.Targets {
		t := sanitizeTarget(fileReg.Targets[i])
		if err := validateTarget(t); err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if _, exists := reg.idx[t.ID]; exists {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		reg.targets[i] = t
		reg.idx[t.ID] = t
	}
	return reg, nil
}

func sanitizeTarget(t Target) Target {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	t.BaseURL = strings.TrimSpace(t.BaseURL)
	t.Path = strings.TrimSpace(t.Path)
	t.Accept = strings.TrimSpace(t.Accept)
	t.Strategy = strings.ToLower(strings.TrimSpace(t.Strategy))

	if t.Name == "" {
		t.Name = t.ID
	}
	if t.Path == "" {
		t.Path = defaultPath
	}
	if t.Accept == "" {
		t.Accept = defaultAccept
	}
	if t.Enabled == nil {
		def := true
		t.Enabled = &def
	}
	return t
}

func validateTarget(t Target) error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.BaseURL == "" {
		return fmt.Errorf("base_url is required for target %q", t.ID)
	}
	if u, err := url.Parse(t.BaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute url for target %q", t.BaseURL, t.ID)
	} else if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base_url %q must not carry a query or fragment for target %q", t.BaseURL, t.ID)
	}
	if t.ConnectTimeoutMs != nil && *t.ConnectTimeoutMs < 0 {
		return fmt.Errorf("connect_timeout_ms must not be negative for target %q", t.ID)
	}
	if t.ReadTimeoutMs != nil && *t.ReadTimeoutMs < 0 {
		return fmt.Errorf("read_timeout_ms must not be negative for target %q", t.ID)
	}
	if t.Strategy != "" {
		if _, err := httpclient.ParseStrategy(t.Strategy); err != nil {
			return fmt.Errorf("target %q: %w", t.ID, err)
		}
	}
	return nil
}

// EnabledValue returns the enabled flag defaulting to true.
func (t Target) EnabledValue() bool {
	if t.Enabled == nil {
		return true
	}
	return *t.Enabled
}

// ClientConfig resolves the httpclient configuration for the target.
func (t Target) ClientConfig(def Defaults) (httpclient.Config, error) {
	connectMs := def.ConnectTimeoutMs
	if t.ConnectTimeoutMs != nil {
		connectMs = *t.ConnectTimeoutMs
	}
	readMs := def.ReadTimeoutMs
	if t.ReadTimeoutMs != nil {
		readMs = *t.ReadTimeoutMs
	}
	strategy := def.Strategy
	if t.Strategy != "" {
		s, err := httpclient.ParseStrategy(t.Strategy)
		if err != nil {
			return httpclient.Config{}, fmt.Errorf("target %q: %w", t.ID, err)
		}
		strategy = s
	}
	return httpclient.ConfigFromMillis(t.BaseURL, connectMs, readMs, strategy), nil
}

// URL is the full probed address.
func (t Target) URL() string {
	return httpclient.JoinURL(t.BaseURL, t.Path)
}

// ByID returns the target with the given id.
func (r *Registry) ByID(id string) (Target, bool) {
	if r == nil {
		return Target{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Target{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.idx[id]
	return t, ok
}

// All returns every configured target.
func (r *Registry) All() []Target {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Enabled returns targets that are enabled.
func (r *Registry) Enabled() []Target {
	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]Target, 0, len(all))
	for _, t := range all {
		if t.EnabledValue() {
			out = append(out, t)
		}
	}
	return out
}
