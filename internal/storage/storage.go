package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/pingwatch/internal/domain"
)

// Store remembers the last outcome observed for each target so that
// events are only emitted when a target changes state.
type Store interface {
	Close() error
	LastOutcome(targetID string) (domain.Outcome, bool, error)
	SaveOutcome(targetID string, outcome domain.Outcome) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	OutcomeTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultOutcomeTTL      = 24 * time.Hour
	defaultCleanupInterval = time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.OutcomeTTL <= 0 {
		opts.OutcomeTTL = defaultOutcomeTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                                    { return nil }
func (noopStore) LastOutcome(string) (domain.Outcome, bool, error) { return "", false, nil }
func (noopStore) SaveOutcome(string, domain.Outcome) error         { return nil }
