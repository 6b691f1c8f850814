package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusProcessing Status = "processing"
)

const DefaultUserID = "demo-user"

// FlexString decodes from a JSON string or number. Browsers send
// sessionId as Date.now(), so numeric ids are common.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexString(n.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", data)
}

func (f FlexString) String() string {
	return string(f)
}

// ChatRequest 入站聊天请求
type ChatRequest struct {
	Message   FlexString `json:"message"`
	Timestamp string     `json:"timestamp,omitempty"`
	UserID    FlexString `json:"userId,omitempty"`
	SessionID FlexString `json:"sessionId,omitempty"`
	ChatID    FlexString `json:"chatId,omitempty"`
	Action    string     `json:"action,omitempty"`
	RequestID FlexString `json:"requestId,omitempty"`
}

// TrimmedMessage returns the message without surrounding whitespace.
func (r ChatRequest) TrimmedMessage() string {
	return strings.TrimSpace(string(r.Message))
}

// Payload builds the webhook body, filling absent metadata from now.
func (r ChatRequest) Payload(now time.Time) WebhookPayload {
	p := WebhookPayload{
		Message:   r.TrimmedMessage(),
		Timestamp: r.Timestamp,
		UserID:    string(r.UserID),
		SessionID: string(r.SessionID),
		ChatID:    string(r.ChatID),
		Action:    r.Action,
		RequestID: string(r.RequestID),
	}
	if p.Timestamp == "" {
		p.Timestamp = FormatTimestamp(now)
	}
	if p.UserID == "" {
		p.UserID = DefaultUserID
	}
	if p.SessionID == "" {
		p.SessionID = DefaultSessionID(now)
	}
	return p
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// DefaultSessionID derives a session id from the request time.
func DefaultSessionID(now time.Time) string {
	return "demo-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// WebhookPayload 发往工作流 webhook 的请求体
type WebhookPayload struct {
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId,omitempty"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// WebhookResponse is the raw upstream reply. Truncated is set when the body
// was cut at the client's size limit.
type WebhookResponse struct {
	StatusCode int
	Status     string
	Body       []byte
	Truncated  bool
}

func (r *WebhookResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ProbeResult describes a HEAD request against the webhook.
type ProbeResult struct {
	StatusCode int
	StatusText string
}

// ChatResult 返回给调用方的结果
type ChatResult struct {
	Response string `json:"response"`
	Status   Status `json:"status"`

	// Kind and UpstreamStatus let adapters choose an HTTP status; they are not serialized.
	Kind           ErrorKind `json:"-"`
	UpstreamStatus int       `json:"-"`
}

func (r ChatResult) Failed() bool {
	return r.Status == StatusError
}

// PollResult is the answer of a listen request.
type PollResult struct {
	HasMessage bool   `json:"hasMessage"`
	Message    string `json:"message,omitempty"`
	Status     Status `json:"status"`
}

// Job is one asynchronous relay, carried by the job queue.
type Job struct {
	RequestID  string         `json:"requestId"`
	Payload    WebhookPayload `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}
