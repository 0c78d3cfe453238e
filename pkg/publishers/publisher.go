package publishers

import (
	"context"

	"github.com/samvad-hq/pingwatch/internal/logger"
)

// Publisher sends outcome events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the structured logger publishers report deliveries to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }
