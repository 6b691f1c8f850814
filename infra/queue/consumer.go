package queue

import (
	"context"
	"fmt"
	"log/slog"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type Consumer struct {
	consumer rocketmq.PushConsumer
}

func NewConsumer(nameServers []string, group string, maxRetries int) (*Consumer, error) {
	c, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(nameServers)),
		consumer.WithGroupName(group),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithRetry(maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &Consumer{consumer: c}, nil
}

func (c *Consumer) Subscribe(topic string, handler Handler) error {
	return c.consumer.Subscribe(topic, consumer.MessageSelector{}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		return dispatch(ctx, handler, msgs...)
	})
}

// dispatch hands each message to handler and asks the broker to retry the
// batch when one of them fails.
func dispatch(ctx context.Context, handler Handler, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		m := Message{
			ID:      msg.MsgId,
			Tag:     msg.GetTags(),
			Payload: msg.Body,
		}
		if err := handler(ctx, m); err != nil {
			slog.Error("handle message failed, will retry", "msg_id", msg.MsgId, "error", err)
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

func (c *Consumer) Start() error {
	return c.consumer.Start()
}

func (c *Consumer) Stop() error {
	return c.consumer.Shutdown()
}
