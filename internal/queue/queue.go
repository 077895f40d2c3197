// Package queue publishes job notifications to Pub/Sub and provisions the
// topic and push subscription when running against the emulator.
package queue

import (
	"context"
	"log/slog"
	"time"

	"image-transform/internal/jobdb"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func EnsureTopic(ctx context.Context, client *pubsub.Client, topicName string) error {
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = client.CreateTopic(ctx, topicName)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// EnsureTopicWithRetry retries EnsureTopic while the emulator starts up.
func EnsureTopicWithRetry(ctx context.Context, client *pubsub.Client, topicName string, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = EnsureTopic(ctx, client, topicName); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func EnsureSubscription(ctx context.Context, client *pubsub.Client, topicName, subName, pushEndpoint string) error {
	sub := client.Subscription(subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	cfg := pubsub.SubscriptionConfig{Topic: client.Topic(topicName)}
	if pushEndpoint != "" {
		cfg.PushConfig = pubsub.PushConfig{Endpoint: pushEndpoint}
	}
	_, err = client.CreateSubscription(ctx, subName, cfg)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// Outbox is the job store side of publishing.
type Outbox interface {
	Claim(ctx context.Context, limit int) ([]jobdb.OutboxMessage, error)
	MarkPublished(id string) error
	RecordError(id string, errMsg string) error
}

type Publisher struct {
	Topic   *pubsub.Topic
	Outbox  Outbox
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewPublisher(topic *pubsub.Topic, outbox Outbox, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Topic: topic, Outbox: outbox, Timeout: 2 * time.Second, Logger: logger}
}

// Publish sends one outbox message and records the outcome on the outbox row.
func (p *Publisher) Publish(ctx context.Context, msg jobdb.OutboxMessage) error {
	publishCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	result := p.Topic.Publish(publishCtx, &pubsub.Message{
		Data:       msg.Payload,
		Attributes: map[string]string{"jobId": msg.JobID},
	})
	if _, err := result.Get(publishCtx); err != nil {
		if recErr := p.Outbox.RecordError(msg.ID, err.Error()); recErr != nil {
			p.Logger.Error("record outbox error failed", "outbox_id", msg.ID, "err", recErr)
		}
		return err
	}
	return p.Outbox.MarkPublished(msg.ID)
}

// Drain claims one batch and publishes it, returning how many were sent.
func (p *Publisher) Drain(ctx context.Context, batchSize int) (int, error) {
	messages, err := p.Outbox.Claim(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, msg := range messages {
		if err := p.Publish(ctx, msg); err != nil {
			p.Logger.Error("publish failed for outbox", "outbox_id", msg.ID, "job_id", msg.JobID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Run drains the outbox until ctx is cancelled, sleeping for pollInterval
// whenever a batch comes back empty or fails.
func (p *Publisher) Run(ctx context.Context, pollInterval time.Duration, batchSize int) {
	for {
		n, err := p.Drain(ctx, batchSize)
		if err != nil {
			p.Logger.Error("outbox claim failed", "err", err)
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}
