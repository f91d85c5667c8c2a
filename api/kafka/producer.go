package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type Producer interface {
	SendRunMessage(ctx context.Context, topic string, message *RunMessage) error
	Close() error
}

// RunMessage enqueues one transcription run for the background runtime.
type RunMessage struct {
	JobID       string `json:"job_id"`
	RunID       string `json:"run_id"`
	TraceID     string `json:"trace_id"`
	StoragePath string `json:"storage_path"`
	Language    string `json:"language,omitempty"`
	Granularity string `json:"timestamp_granularity"`
}

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

func (p *producer) SendRunMessage(ctx context.Context, topic string, message *RunMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(message.JobID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
