package llm

import (
	"context"
	"time"

	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/metrics"
)

// Invoker wraps a Completer with a timeout and a fixed fallback reply.
// It never surfaces provider errors to callers.
type Invoker struct {
	completer Completer
	fallback  string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewInvoker creates an invoker. m may be nil.
func NewInvoker(c Completer, fallback string, timeout time.Duration, m *metrics.Metrics) *Invoker {
	return &Invoker{
		completer: c,
		fallback:  fallback,
		timeout:   timeout,
		metrics:   m,
	}
}

// Fallback returns the reply used when the provider fails
func (i *Invoker) Fallback() string {
	return i.fallback
}

// Complete returns the provider's reply, or the fallback with ok=false on any failure
func (i *Invoker) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (reply string, ok bool) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := i.completer.Complete(ctx, prompt, maxTokens, temperature)
	if i.metrics != nil {
		i.metrics.ObserveCompletion(time.Since(start))
	}
	if err != nil {
		logger.Error("Completion call failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
		if i.metrics != nil {
			i.metrics.ProviderFailures.Inc()
		}
		return i.fallback, false
	}

	logger.Debug("Completion succeeded in %v (%d chars)", time.Since(start).Round(time.Millisecond), len(text))
	return text, true
}
