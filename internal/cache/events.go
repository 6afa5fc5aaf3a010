package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	eventStreamPrefix = "worm:events:"

	// eventStreamMaxLen bounds stream growth; old events are trimmed.
	eventStreamMaxLen = 1000
)

// Event is a worm lifecycle notification carried on a Redis Stream.
type Event struct {
	WormID    string         `json:"worm_id"`
	Type      string         `json:"type"` // experience_recorded, consolidation_complete, ...
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publish appends an event to the worm's stream.
func (c *Client) Publish(ctx context.Context, wormID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(Event{
		WormID:    wormID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamPrefix + wormID,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return err
	}

	c.logger.Debug("event published",
		zap.String("worm", wormID),
		zap.String("type", eventType))
	return nil
}

// Subscribe listens for a worm's events starting from now.
// Returns a channel that emits events. Cancel the context to stop.
func (c *Client) Subscribe(ctx context.Context, wormID string) <-chan *Event {
	ch := make(chan *Event, 16)
	stream := eventStreamPrefix + wormID

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := c.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}
