// Package trigger hands workflow steps to the external AI agent.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-stepflow/internal/domain"
	"go-stepflow/internal/metrics"
)

const promptKeyPrefix = 64

// Gateway implements ports.TriggerGateway on top of a Transport. Concurrent
// activations of the same project, step and prompt are suppressed.
type Gateway struct {
	transport Transport
	inflight  Inflight
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewGateway(transport Transport, inflight Inflight, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		transport: transport,
		inflight:  inflight,
		metrics:   m,
		logger:    logger.With("component", "trigger"),
	}
}

func (g *Gateway) ActivateStep(ctx context.Context, activation domain.Activation) (string, error) {
	key := inflightKey(activation)

	acquired, err := g.inflight.Acquire(ctx, key)
	if err != nil {
		// registry outage must not stop the workflow
		g.logger.Warn("in-flight registry unavailable", "error", err)
		acquired = true
	}
	if !acquired {
		g.metrics.Activations.WithLabelValues("duplicate").Inc()
		return "", domain.ErrActivationInFlight
	}
	defer func() {
		if err := g.inflight.Release(context.WithoutCancel(ctx), key); err != nil {
			g.logger.Warn("in-flight release failed", "key", key, "error", err)
		}
	}()

	start := time.Now()
	ref, err := g.transport.Send(ctx, activation)
	g.metrics.ActivationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.Activations.WithLabelValues("error").Inc()
		return "", fmt.Errorf("activate %s for project %s: %w: %v", activation.StepName, activation.ProjectID, domain.ErrUpstreamAgent, err)
	}

	g.metrics.Activations.WithLabelValues("ok").Inc()
	return ref, nil
}

func inflightKey(a domain.Activation) string {
	prompt := a.Prompt
	if len(prompt) > promptKeyPrefix {
		prompt = prompt[:promptKeyPrefix]
	}
	return fmt.Sprintf("%s:%s:%s", a.ProjectID, a.StepID, prompt)
}
