package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/log"
	"google.golang.org/api/option"
)

const (
	mailAckDeadline   = 60 * time.Second
	retryMinBackoff   = 10 * time.Second
	retryMaxBackoff   = 10 * time.Minute
	maxTrackedFailure = 4096
)

// PubSubClient maps each queue channel to a topic and one pull subscription.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
	failures           *attemptTracker
	logger             zerolog.Logger
}

// NewPubSubClient connects to the project in cfg.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		failures:           newAttemptTracker(maxTrackedFailure),
		logger:             log.WithComponent("pubsub"),
	}, nil
}

// Publish enqueues data on channel and returns the server-assigned id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Subscribe blocks delivering channel messages to handler until ctx ends.
// A message whose handler fails MaxDeliveries times is acked and dropped.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}
	sub, err := p.subscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if err == nil {
			p.failures.forget(msg.ID)
			msg.Ack()
			return
		}
		attempt := p.failures.failed(msg.ID, msg.DeliveryAttempt)
		if redeliver(attempt) {
			msg.Nack()
			return
		}
		p.failures.forget(msg.ID)
		p.logger.Warn().Err(err).Str("channel", channel).Str("message_id", msg.ID).Int("attempt", attempt).
			Msg("dropping message after failed redelivery")
		msg.Ack()
	})
}

func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	ok, err := topic.Exists(ctx)
	if err != nil || ok {
		return topic, err
	}
	return p.client.CreateTopic(ctx, name)
}

// subscription creates the pull subscription with a backoff between
// redeliveries so a failing SMTP relay is not hammered.
func (p *PubSubClient) subscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil || ok {
		return sub, err
	}
	return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: mailAckDeadline,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: retryMinBackoff,
			MaximumBackoff: retryMaxBackoff,
		},
	})
}

func (p *PubSubClient) subscriptionName(channel string) string {
	return channel + p.subscriptionSuffix
}

// attemptTracker counts failed deliveries per message id. Pub/Sub only
// reports DeliveryAttempt when a dead-letter policy exists, so the count
// kept here is the fallback.
type attemptTracker struct {
	mu    sync.Mutex
	limit int
	seen  map[string]int
}

func newAttemptTracker(limit int) *attemptTracker {
	return &attemptTracker{limit: limit, seen: make(map[string]int)}
}

// failed records a failed delivery of id and returns its attempt number.
func (t *attemptTracker) failed(id string, reported *int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt := t.seen[id] + 1
	if reported != nil && *reported > attempt {
		attempt = *reported
	}
	if _, ok := t.seen[id]; !ok && len(t.seen) >= t.limit {
		t.seen = make(map[string]int)
	}
	t.seen[id] = attempt
	return attempt
}

func (t *attemptTracker) forget(id string) {
	t.mu.Lock()
	delete(t.seen, id)
	t.mu.Unlock()
}
