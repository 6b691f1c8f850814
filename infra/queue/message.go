package queue

import (
	"context"

	"github.com/google/uuid"
)

type Message struct {
	ID      string
	Tag     string
	Payload []byte
}

// NewMessage 创建新消息
func NewMessage(tag string, payload []byte) Message {
	return Message{
		ID:      uuid.NewString(),
		Tag:     tag,
		Payload: payload,
	}
}

// Handler consumes one message. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, msg Message) error
