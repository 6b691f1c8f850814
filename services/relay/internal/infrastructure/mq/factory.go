package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mogeeb/config"
	"mogeeb/infra/queue"
	"mogeeb/services/relay/internal/domain"
)

const (
	ModeRocketMQ = "rocketmq"
	ModeLocal    = "local"
)

// Pipeline is the running async job path: a producer side for the handlers
// and a consumer side that feeds handler.
type Pipeline struct {
	Queue domain.JobQueue
	Mode  string

	closers []func(ctx context.Context) error
}

// InitPipeline wires RocketMQ when name servers are configured and falls
// back to an in-process worker pool otherwise.
func InitPipeline(ctx context.Context, mqCfg config.RocketMQConfig, relayCfg config.RelayConfig, handler domain.JobHandler) (*Pipeline, error) {
	topic := mqCfg.Topic
	if topic == "" {
		topic = TopicRelay
	}
	jc := NewJobConsumer(handler)

	nameServers := queue.ResolveNameServers(mqCfg.NameServers)
	if len(nameServers) == 0 {
		slog.Info("RocketMQ name servers not configured, using local worker pool",
			"workers", relayCfg.Workers,
			"queue_size", relayCfg.QueueSize)

		lq := queue.NewLocalQueue(relayCfg.Workers, relayCfg.QueueSize).WithJobTimeout(JobTimeout(relayCfg))
		if err := lq.Subscribe(topic, jc.Handle); err != nil {
			return nil, err
		}
		lq.Start(ctx)
		return &Pipeline{
			Queue:   NewJobProducer(lq, topic),
			Mode:    ModeLocal,
			closers: []func(ctx context.Context) error{lq.Shutdown},
		}, nil
	}

	p, err := queue.NewProducer(nameServers, mqCfg.GroupName, mqCfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to init RocketMQ producer: %w", err)
	}

	c, err := queue.NewConsumer(nameServers, mqCfg.ConsumerGroup, mqCfg.MaxRetries)
	if err != nil {
		p.Stop()
		return nil, fmt.Errorf("failed to init RocketMQ consumer: %w", err)
	}
	if err := c.Subscribe(topic, jc.Handle); err != nil {
		p.Stop()
		return nil, fmt.Errorf("failed to subscribe %s: %w", topic, err)
	}
	if err := c.Start(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("failed to start RocketMQ consumer: %w", err)
	}

	slog.Info("RocketMQ pipeline started", "topic", topic, "name_servers", nameServers)
	return &Pipeline{
		Queue:   NewJobProducer(p, topic),
		Mode:    ModeRocketMQ,
		closers: []func(ctx context.Context) error{
			func(context.Context) error { return p.Stop() },
			func(context.Context) error { return c.Stop() },
		},
	}, nil
}

// Close stops producing first, then consuming. Local jobs still buffered are
// drained until ctx ends.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range p.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobTimeout bounds one relay job: every attempt, the linear backoff between
// attempts and, with two-phase on, the long wait.
func JobTimeout(cfg config.RelayConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 0
	}
	attempts := 1 + max(cfg.MaxRetries, 0)
	d := time.Duration(attempts)*cfg.Timeout + time.Duration(attempts*(attempts-1)/2)*cfg.Backoff
	if cfg.TwoPhase {
		d += cfg.WaitCeiling
	}
	return d
}
