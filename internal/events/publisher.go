// Package events publishes normalized message events to Redis for downstream
// consumers (AI enrichment, analytics). Publishing is best-effort from the
// pipeline's point of view: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher pushes events onto a Redis list consumed by downstream workers.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a Publisher targeting the given queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// NewEvent builds an event payload for a persisted message. The preview is
// truncated so analytics consumers never receive full bodies.
func NewEvent(eventType string, msg *models.Message) *models.Event {
	return &models.Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		UserID:    msg.UserID,
		Type:      eventType,
		FlowID:    msg.FlowID,
		MessageID: msg.ID,
		Channel:   msg.Channel,
		From:      msg.FromAddress,
		Subject:   msg.Subject,
		Preview:   preview(msg.BodyText, 140),
	}
}

// Publish serializes the event and pushes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("failed to push event to queue: %w", err)
	}

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
