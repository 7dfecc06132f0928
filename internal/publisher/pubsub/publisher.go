// Package pubsub publishes wiki events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Topic is the subset of *pubsub.Topic the publisher uses.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) Result
	Stop()
}

// Result is the subset of *pubsub.PublishResult the publisher uses.
type Result interface {
	Get(ctx context.Context) (string, error)
}

// Publisher marshals payloads to JSON and publishes them to one topic.
type Publisher struct {
	topic  Topic
	client *pubsub.Client
}

// New dials Pub/Sub and binds the named topic.
func New(ctx context.Context, projectID, topicName string) (*Publisher, error) {
	if projectID == "" || topicName == "" {
		return nil, errors.New("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{topic: topicAdapter{client.Topic(topicName)}, client: client}, nil
}

// NewWithTopic wraps an existing topic.
func NewWithTopic(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish sends payload as JSON. The topic argument is recorded as the
// "topic" attribute; the destination is fixed at construction.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"topic": topic},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

type topicAdapter struct {
	topic *pubsub.Topic
}

func (t topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) Result {
	return t.topic.Publish(ctx, msg)
}

func (t topicAdapter) Stop() {
	t.topic.Stop()
}
