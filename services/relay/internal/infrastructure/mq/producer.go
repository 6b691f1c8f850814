package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mogeeb/infra/queue"
	"mogeeb/services/relay/internal/domain"
)

// Sender is satisfied by both the RocketMQ producer and the local queue.
type Sender interface {
	Send(ctx context.Context, topic string, msg queue.Message) error
}

// JobProducer publishes relay jobs; it implements domain.JobQueue.
type JobProducer struct {
	sender Sender
	topic  string
}

func NewJobProducer(sender Sender, topic string) *JobProducer {
	if topic == "" {
		topic = TopicRelay
	}
	return &JobProducer{sender: sender, topic: topic}
}

func (p *JobProducer) Enqueue(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("converting error: %w", err)
	}
	msg := queue.NewMessage(TagRelayJob, data)
	msg.ID = job.RequestID

	if err := p.sender.Send(ctx, p.topic, msg); err != nil {
		if errors.Is(err, queue.ErrFull) {
			return fmt.Errorf("%w: %v", domain.ErrQueueFull, err)
		}
		if errors.Is(err, queue.ErrClosed) {
			return fmt.Errorf("%w: %v", domain.ErrQueueClosed, err)
		}
		return err
	}
	return nil
}
