package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/gowiki/internal/events"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

// PublisherSink forwards page change events to a topic. Backup events are
// not forwarded.
type PublisherSink struct {
	publisher wiki.Publisher
	topic     string
}

// NewPublisherSink constructs a PublisherSink.
func NewPublisherSink(publisher wiki.Publisher, topic string) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &PublisherSink{publisher: publisher, topic: topic}, nil
}

// Consume publishes each page change. It stops at the first failure.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	for _, evt := range batch {
		if !evt.IsPageChange() {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			return fmt.Errorf("publish %s for event %s: %w", evt.Kind, evt.ID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
