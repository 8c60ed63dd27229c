package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go-stepflow/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Transport delivers one activation and returns the agent's conversation handle.
type Transport interface {
	Send(ctx context.Context, activation domain.Activation) (string, error)
}

// HTTPTransport POSTs the activation to the agent's webhook.
type HTTPTransport struct {
	url  string
	http *resty.Client
}

type activationResponse struct {
	ConversationRef string `json:"conversationRef"`
	ConversationID  string `json:"conversationId"`
}

func NewHTTPTransport(url string, timeout time.Duration, retries int) *HTTPTransport {
	return &HTTPTransport{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				// Retry on 429 (Too Many Requests) and 5xx server errors
				return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
			}),
	}
}

func (t *HTTPTransport) Send(ctx context.Context, activation domain.Activation) (string, error) {
	var out activationResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(activation).
		SetResult(&out).
		Post(t.url)
	if err != nil {
		return "", fmt.Errorf("activation request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("agent answered %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	ref := out.ConversationRef
	if ref == "" {
		ref = out.ConversationID
	}
	if ref == "" {
		return "", fmt.Errorf("agent response carries no conversation reference")
	}
	return ref, nil
}

// Pusher is the queue side of the activation list.
type Pusher interface {
	Push(ctx context.Context, payload []byte) error
}

// QueueTransport enqueues the activation for an agent worker to pick up. The
// returned reference travels with the payload so callbacks can be correlated.
type QueueTransport struct {
	queue Pusher
}

type queuedActivation struct {
	domain.Activation
	ConversationRef string `json:"conversationRef"`
}

func NewQueueTransport(queue Pusher) *QueueTransport {
	return &QueueTransport{queue: queue}
}

func (t *QueueTransport) Send(ctx context.Context, activation domain.Activation) (string, error) {
	ref := "queue-" + uuid.NewString()
	payload, err := json.Marshal(queuedActivation{Activation: activation, ConversationRef: ref})
	if err != nil {
		return "", err
	}
	if err := t.queue.Push(ctx, payload); err != nil {
		return "", fmt.Errorf("enqueue activation: %w", err)
	}
	return ref, nil
}

// LogTransport only logs activations. Development use.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, activation domain.Activation) (string, error) {
	ref := "log-" + uuid.NewString()
	t.logger.Info("step activation",
		"project_id", activation.ProjectID,
		"step", activation.StepName,
		"attempt", activation.Attempt,
		"conversation_ref", ref,
	)
	return ref, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
