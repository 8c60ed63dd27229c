// Package notifier delivers operator alerts about workflow outcomes.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/metrics"
	"go-stepflow/internal/worker"

	"github.com/go-resty/resty/v2"
)

type envelope struct {
	Type    string    `json:"type"`
	SentAt  time.Time `json:"sentAt"`
	Payload any       `json:"payload"`
}

// WebhookNotifier POSTs alerts as JSON to an alerting endpoint.
type WebhookNotifier struct {
	url  string
	http *resty.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			}),
	}
}

func (n *WebhookNotifier) NotifyFailure(ctx context.Context, alert domain.FailureAlert) error {
	return n.post(ctx, "failure", alert)
}

func (n *WebhookNotifier) NotifySuccess(ctx context.Context, alert domain.SuccessAlert) error {
	return n.post(ctx, "success", alert)
}

func (n *WebhookNotifier) post(ctx context.Context, kind string, payload any) error {
	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(envelope{Type: kind, SentAt: time.Now().UTC(), Payload: payload}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotificationDelivery, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: webhook answered %d", domain.ErrNotificationDelivery, resp.StatusCode())
	}
	return nil
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) NotifyFailure(_ context.Context, alert domain.FailureAlert) error {
	n.logger.Error("workflow step failed",
		"project_id", alert.ProjectID,
		"step_id", alert.StepID,
		"step", alert.StepName,
		"error_kind", alert.ErrorKind,
		"priority", alert.Priority,
		"retry_count", alert.RetryCount,
		"max_retries", alert.MaxRetries,
		"reason", alert.Reason,
	)
	return nil
}

func (n *LogNotifier) NotifySuccess(_ context.Context, alert domain.SuccessAlert) error {
	n.logger.Info("workflow completed", "project_id", alert.ProjectID, "completed_steps", alert.CompletedSteps)
	return nil
}

// Async hands every alert to a worker pool and returns immediately. Alerts
// that do not fit in the queue are dropped and logged.
type Async struct {
	next    ports.Notifier
	pool    *worker.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAsync(next ports.Notifier, pool *worker.Pool, m *metrics.Metrics, logger *slog.Logger) *Async {
	return &Async{
		next:    next,
		pool:    pool,
		metrics: m,
		logger:  logger.With("component", "notifier"),
	}
}

func (a *Async) NotifyFailure(_ context.Context, alert domain.FailureAlert) error {
	return a.submit("failure", func(ctx context.Context) error {
		return a.next.NotifyFailure(ctx, alert)
	})
}

func (a *Async) NotifySuccess(_ context.Context, alert domain.SuccessAlert) error {
	return a.submit("success", func(ctx context.Context) error {
		return a.next.NotifySuccess(ctx, alert)
	})
}

func (a *Async) submit(kind string, deliver func(ctx context.Context) error) error {
	job := worker.Job{
		Name: "notify_" + kind,
		Run: func(ctx context.Context) error {
			if err := deliver(ctx); err != nil {
				a.metrics.Notifications.WithLabelValues(kind, "error").Inc()
				return err
			}
			a.metrics.Notifications.WithLabelValues(kind, "sent").Inc()
			return nil
		},
	}
	if err := a.pool.Submit(job); err != nil {
		a.metrics.Notifications.WithLabelValues(kind, "dropped").Inc()
		a.logger.Error("alert dropped", "type", kind, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrNotificationDelivery, err)
	}
	return nil
}
