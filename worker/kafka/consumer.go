package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type MessageHandler func(ctx context.Context, msg *RunMessage) error

// RunMessage mirrors the producer-side payload enqueued at finalize.
type RunMessage struct {
	JobID       string `json:"job_id"`
	RunID       string `json:"run_id"`
	TraceID     string `json:"trace_id"`
	StoragePath string `json:"storage_path"`
	Language    string `json:"language,omitempty"`
	Granularity string `json:"timestamp_granularity"`
}

type Consumer struct {
	consumer sarama.ConsumerGroup
}

func NewConsumer(brokers []string, groupID string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

type consumerHandler struct {
	fn  MessageHandler
	ctx context.Context
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var runMsg RunMessage
		if err := json.Unmarshal(msg.Value, &runMsg); err != nil {
			continue
		}
		h.fn(h.ctx, &runMsg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) Consume(ctx context.Context, topic string, handler MessageHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx}
	return c.consumer.Consume(ctx, []string{topic}, h)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
