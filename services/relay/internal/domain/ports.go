package domain

import "context"

// Webhook 定义上游工作流的访问接口
// Transport failures come back as *RelayError with KindTimeout or KindConnection.
type Webhook interface {
	Post(ctx context.Context, payload WebhookPayload) (*WebhookResponse, error)
	Probe(ctx context.Context) (*ProbeResult, error)
	URL() string
}

// PendingStore holds replies produced asynchronously until the client listens.
// Implementations must be safe for concurrent use and expire idle sessions.
type PendingStore interface {
	Push(ctx context.Context, sessionID, message string) error
	Pop(ctx context.Context, sessionID string) (string, bool, error)
}

// JobQueue delivers async relay jobs to a JobHandler.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}

type JobHandler func(ctx context.Context, job Job) error
