package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate maximum length of the execution stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus publishes opportunities on a Pub/Sub channel for live consumers
// and appends terminal execution records to a stream for durable replay.
type EventBus struct {
	c *Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{c: c}
}

// OpportunityChannel is the Pub/Sub channel opportunities are published on.
func (b *EventBus) OpportunityChannel() string { return b.c.key("events", "opportunities") }

// ExecutionStream is the stream terminal execution records are appended to.
func (b *EventBus) ExecutionStream() string { return b.c.key("events", "executions") }

// OnOpportunity publishes opp as JSON.
func (b *EventBus) OnOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity: %w", err)
	}
	if err := b.c.rdb.Publish(ctx, b.OpportunityChannel(), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.OpportunityChannel(), err)
	}
	return nil
}

// OnExecutionTerminal appends rec to the execution stream.
func (b *EventBus) OnExecutionTerminal(ctx context.Context, rec domain.ExecutionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal execution: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: b.ExecutionStream(),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"game_id": string(rec.GameID),
			"state":   string(rec.State),
			"payload": payload,
		},
	}
	if err := b.c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", b.ExecutionStream(), err)
	}
	return nil
}

var _ domain.EventSink = (*EventBus)(nil)
