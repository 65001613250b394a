package runtime

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch.evalgo.org/envelope"
)

// Config configures a Runtime.
type Config struct {
	Logger *logrus.Entry
	// Now is the clock used for NotBefore/EnqueuedAt stamping; overridable
	// in tests.
	Now func() time.Time
	// Rand01 returns a uniform value in [0,1) for backoff jitter;
	// overridable in tests for deterministic delays.
	Rand01 func() float64
}

func DefaultConfig() Config {
	return Config{Now: time.Now, Rand01: rand.Float64}
}

// Runtime is the Execution Runtime (spec §4.5): it runs one attempt of an
// envelope against the executor registry and advances the envelope's
// lifecycle state, applying retry backoff or DLQ synthesis on failure.
type Runtime struct {
	cfg      Config
	logger   *logrus.Entry
	registry *Registry
}

// New creates a Runtime bound to an executor registry.
func New(registry *Registry, cfg Config) *Runtime {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand01 == nil {
		cfg.Rand01 = rand.Float64
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runtime{cfg: cfg, logger: cfg.Logger.WithField("component", "runtime"), registry: registry}
}

// Execute runs a single attempt of e and returns the envelope in its
// post-attempt state. On success, e.State becomes StateSuccess. On
// failure, if attempts remain, e.State returns to StatePending with
// NotBefore advanced by the backoff formula (spec §3 RetryBackoff); once
// MaxAttempts is exhausted, a dead-lettered copy is returned with
// e.State == StateDeadLettered (spec §4.1 DLQ transition).
func (rt *Runtime) Execute(ctx context.Context, e *envelope.Envelope) *envelope.Envelope {
	now := rt.cfg.Now()

	if e.Cancelled() {
		e.State = envelope.StateRevoked
		return e
	}
	if e.Expired(now) {
		e.State = envelope.StateExpired
		return e
	}

	e.State = envelope.StateRunning
	e.Attempt++

	action := &Action{
		RoutingKey:  e.RoutingKey,
		Payload:     e.Payload,
		ContentType: e.ContentType,
		Headers:     scalarHeadersToStrings(e.Headers),
	}

	result, err := rt.registry.Execute(ctx, action)
	if err == nil && result != nil && result.Status == StatusCompleted {
		e.State = envelope.StateSuccess
		rt.logger.WithFields(logrus.Fields{"envelope": e.ID, "attempt": e.Attempt}).Info("execution succeeded")
		return e
	}

	failMsg := "execution failed"
	if err != nil {
		failMsg = err.Error()
	}
	rt.logger.WithFields(logrus.Fields{"envelope": e.ID, "attempt": e.Attempt, "error": failMsg}).Warn("execution attempt failed")

	if e.MaxAttempts > 0 && e.Attempt >= e.MaxAttempts {
		e.State = envelope.StateDeadLettered
		return e.DeadLetter(failMsg)
	}

	delay := e.Backoff.Delay(e.Attempt, rt.cfg.Rand01())
	e.NotBefore = now.Add(delay)
	e.State = envelope.StatePending
	return e
}

func scalarHeadersToStrings(headers map[string]envelope.Scalar) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch v.Kind {
		case envelope.ScalarInt64:
			out[k] = strconv.FormatInt(v.Int, 10)
		case envelope.ScalarFloat:
			out[k] = strconv.FormatFloat(v.Flt, 'g', -1, 64)
		case envelope.ScalarBool:
			out[k] = strconv.FormatBool(v.Bool)
		case envelope.ScalarTime:
			out[k] = v.Time.Format(time.RFC3339)
		default:
			out[k] = v.Str
		}
	}
	return out
}
