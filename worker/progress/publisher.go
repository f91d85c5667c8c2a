package progress

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RunEvent mirrors the push-channel wire format the registry serves.
type RunEvent struct {
	Status   string        `json:"status"`
	Metadata EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
	Error       string `json:"error,omitempty"`
}

// Publisher pushes run events onto the per-run redis channel. Delivery is
// at-least-once from the subscriber's point of view; consumers guard
// against duplicate terminal events.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, runID string, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, "run:events:"+runID, data).Err()
}
