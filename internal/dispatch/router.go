// Package dispatch is the invocation core of the relay. Ingress adapters
// hand it canonical invocations; it applies bulkhead and circuit-breaker
// admission, runs the handler under a deadline with retries, and converts
// every outcome into a response envelope.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/resilience"
)

// Config tunes the router.
type Config struct {
	DefaultTimeout time.Duration
	Retry          RetryPolicy
}

// Router dispatches canonical invocations to registered handlers. Invoke
// never panics and never returns a Go error; every failure mode lands in the
// envelope.
type Router struct {
	cfg      Config
	registry *Registry
	policies *resilience.Registry
	log      *slog.Logger
}

func NewRouter(cfg Config, registry *Registry, policies *resilience.Registry) *Router {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	cfg.Retry = cfg.Retry.normalized()
	return &Router{
		cfg:      cfg,
		registry: registry,
		policies: policies,
		log:      slog.Default().With("component", "dispatch"),
	}
}

// Policies exposes the resilience registry for status reporting.
func (r *Router) Policies() *resilience.Registry {
	return r.policies
}

// Invoke runs one canonical invocation through admission, timeout, retry and
// outcome recording, and returns the resulting envelope.
func (r *Router) Invoke(ctx context.Context, inv domain.Invocation) domain.Envelope {
	start := time.Now()
	action := inv.Key.String()
	log := r.log.With("request_id", inv.RequestID, "action", action, "transport", inv.Transport())

	env := r.invoke(ctx, log, inv)

	code := "OK"
	if !env.Success {
		code = env.Error.Code
	}
	metrics.InvocationsTotal.WithLabelValues(action, code).Inc()
	metrics.InvocationDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	return env
}

func (r *Router) invoke(ctx context.Context, log *slog.Logger, inv domain.Invocation) domain.Envelope {
	handler, ok := r.registry.Lookup(inv.Key)
	if !ok {
		log.Warn("unknown action")
		return domain.Fail(domain.NotFoundf("unknown action %s", inv.Key))
	}

	breaker, bulkhead := r.policies.For(inv.Key.String())

	if err := bulkhead.Acquire(ctx); err != nil {
		log.Warn("bulkhead rejected invocation", "error", err)
		return domain.Fail(err)
	}
	defer bulkhead.Release()

	probe, err := breaker.Allow()
	if err != nil {
		log.Warn("circuit breaker rejected invocation")
		return domain.Fail(err)
	}
	if probe {
		log.Debug("admitted as recovery probe")
	}

	timeout := r.cfg.DefaultTimeout
	if override, ok := inv.TimeoutOverride(); ok {
		timeout = override
	}

	result, err := r.callWithRetry(ctx, log, handler, inv, timeout)
	if err != nil {
		breaker.OnFailure()
		r.logFailure(log, err)
		return domain.Fail(err)
	}

	breaker.OnSuccess()
	log.Debug("invocation succeeded")
	return domain.OK(result)
}

// callWithRetry runs the timed handler call, retrying per policy. The
// bulkhead slot is held and the breaker admission stands for the whole
// sequence; only the final outcome is recorded.
func (r *Router) callWithRetry(ctx context.Context, log *slog.Logger, h Handler, inv domain.Invocation, timeout time.Duration) (any, error) {
	policy := r.cfg.Retry

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.Backoff(attempt - 1)
			log.Debug("retrying invocation", "attempt", attempt+1, "delay", delay)
			metrics.RetriesTotal.WithLabelValues(inv.Key.String()).Inc()
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, domain.Timeoutf("cancelled during retry backoff")
			}
		}

		result, err := r.callOnce(ctx, h, inv, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// callOnce races one handler execution against the deadline. A handler that
// ignores its cancelled context keeps its goroutine until it returns; the
// caller still gets TIMEOUT at the deadline.
func (r *Router) callOnce(ctx context.Context, h Handler, inv domain.Invocation, timeout time.Duration) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: domain.Internalf("handler panic: %v", rec)}
			}
		}()
		result, err := h(cctx, inv.Params, inv.Meta)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, domain.Timeoutf("action timed out after %s", timeout)
			}
			return nil, out.err
		}
		return out.result, nil
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, domain.Timeoutf("action timed out after %s", timeout)
		}
		return nil, domain.Timeoutf("invocation cancelled")
	}
}

// logFailure keeps internal detail out of envelopes but in the logs.
func (r *Router) logFailure(log *slog.Logger, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		log.Error("invocation failed", "error", err)
		return
	}
	log.Warn("invocation failed", "error", err)
}
