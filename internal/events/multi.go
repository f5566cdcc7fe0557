package events

import (
	"context"

	"zkbridge/internal/bridge"
	"zkbridge/internal/domain"
)

// Multi fans one event out to several sinks in order.
type Multi []bridge.EventSink

func (m Multi) Publish(ctx context.Context, e domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}
