// Package mq moves background jobs (outbound mail) between the API and the worker.
package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/unilib/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open connects to the broker named by cfg.Backend.
// It returns a nil Backend when no broker is configured.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// MaxDeliveries is how many times a failing message is handed to a
// handler before it is dropped.
const MaxDeliveries = 2

// redeliver reports whether a message that failed on its attempt-th
// delivery (starting at 1) goes back to the broker.
func redeliver(attempt int) bool {
	return attempt < MaxDeliveries
}
