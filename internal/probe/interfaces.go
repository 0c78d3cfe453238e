package probe

import (
	"context"

	"github.com/samvad-hq/pingwatch/pkg/publishers"
)

// EventPublisher publishes outcome transitions downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
