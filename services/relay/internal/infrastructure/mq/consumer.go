package mq

import (
	"context"
	"encoding/json"
	"log/slog"

	"mogeeb/infra/queue"
	"mogeeb/services/relay/internal/domain"
)

// JobConsumer decodes relay jobs and hands them to a domain.JobHandler.
type JobConsumer struct {
	handler domain.JobHandler
}

func NewJobConsumer(handler domain.JobHandler) *JobConsumer {
	return &JobConsumer{handler: handler}
}

// Handle is a queue.Handler. Malformed jobs are dropped since redelivery
// cannot fix them.
func (c *JobConsumer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Tag != TagRelayJob {
		slog.Warn("unknown tag", "tag", msg.Tag, "msg_id", msg.ID)
		return nil
	}

	var job domain.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		slog.Error("unmarshal relay job error", "msg_id", msg.ID, "error", err)
		return nil
	}
	return c.handler(ctx, job)
}
