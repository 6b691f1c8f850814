package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

const (
	maxAttempts    = 3
	attemptTimeout = 5 * time.Minute
	defaultUserID  = "demo-user"

	msgEmptyReply = "عذراً، لم أتمكن من معالجة طلبك."
	msgHTTPFailed = "عذراً، حدث خطأ في الاتصال. حاول مرة أخرى."
)

// 所有尝试失败时显示的问候语
var friendlyFallbacks = []string{
	"أهلاً بك! عذراً للانتظار. إيه اللي تحب تطلبه من المطعم؟",
	"مرحباً! أنا مُجيب وجاهز أساعدك في طلبك. إيه اللي نقدر نعمله لك؟",
	"أهلاً وسهلاً! نورت المطعم. قول لي عايز تطلب إيه وهاساعدك.",
	"حياك الله! أنا هنا عشان آخذ أوردرك. إيه اللي تحب تاكله النهاردة؟",
}

type chatReply struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

type listenReply struct {
	HasMessage bool   `json:"hasMessage"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

// ChatClient talks to one relay adapter and retries the way the web widget does.
type ChatClient struct {
	baseURL   string
	chatPath  string
	userID    string
	http      *http.Client
	sleep     func(ctx context.Context, d time.Duration) error
	pick      func(n int) int
	sessionID string
}

func NewChatClient(baseURL, chatPath string) *ChatClient {
	return &ChatClient{
		baseURL:   baseURL,
		chatPath:  chatPath,
		userID:    defaultUserID,
		http:      &http.Client{Timeout: attemptTimeout},
		sleep:     sleepCtx,
		pick:      rand.Intn,
		sessionID: "demo-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

// Send posts message and always returns something to display.
func (c *ChatClient) Send(ctx context.Context, message string) string {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, status, err := c.post(ctx, message)
		if err == nil && status >= 200 && status < 300 {
			if reply.Response == "" {
				return msgEmptyReply
			}
			return reply.Response
		}
		if attempt < maxAttempts {
			if err := c.sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
				break
			}
			continue
		}
		// last attempt answered with an error status
		if err == nil {
			if reply.Response != "" {
				return reply.Response
			}
			return msgHTTPFailed
		}
	}
	return friendlyFallbacks[c.pick(len(friendlyFallbacks))]
}

// Listen asks the relay for a reply queued for this session.
func (c *ChatClient) Listen(ctx context.Context) (*listenReply, error) {
	body, _ := json.Marshal(map[string]string{
		"sessionId": c.sessionID,
		"userId":    c.userID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/listen", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listen failed: %s", resp.Status)
	}

	var out listenReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode listen reply: %w", err)
	}
	return &out, nil
}

func (c *ChatClient) post(ctx context.Context, message string) (chatReply, int, error) {
	var reply chatReply
	body, _ := json.Marshal(map[string]string{
		"message":   message,
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"userId":    c.userID,
		"sessionId": c.sessionID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.chatPath, bytes.NewReader(body))
	if err != nil {
		return reply, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return reply, 0, err
	}
	defer resp.Body.Close()

	// a non-JSON error body still counts as an answer
	_ = json.NewDecoder(resp.Body).Decode(&reply)
	return reply, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
