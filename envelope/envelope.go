// Package envelope defines the work unit carried through every Dispatch
// Engine component: Router, Scheduler, Worker Pool Manager, Execution
// Runtime, and Workflow Interpreter all operate on Envelopes.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the four work-unit origins sharing the envelope shape.
type Kind string

const (
	KindMessage      Kind = "message"
	KindTask         Kind = "task"
	KindJobRun       Kind = "job-run"
	KindWorkflowStep Kind = "workflow-step"
)

// State is a position in the envelope lifecycle state machine (spec §4.5).
type State string

const (
	StatePending      State = "pending"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateSuccess      State = "success"
	StateFailed       State = "failed"
	StateDeadLettered State = "dead-lettered"
	StateExpired      State = "expired"
	StateRevoked      State = "revoked"
)

// Terminal reports whether a state has no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateDeadLettered, StateExpired, StateRevoked:
		return true
	default:
		return false
	}
}

// AckMode controls how an envelope's delivery is confirmed.
type AckMode string

const (
	AckAuto   AckMode = "auto"
	AckManual AckMode = "manual"
	AckNone   AckMode = "none"
)

// ScalarKind tags the dynamic type carried by a Scalar.
type ScalarKind string

const (
	ScalarString ScalarKind = "string"
	ScalarInt64  ScalarKind = "int64"
	ScalarFloat  ScalarKind = "float64"
	ScalarBool   ScalarKind = "bool"
	ScalarTime   ScalarKind = "time"
)

// Scalar is a closed tagged union for header/attribute values, replacing the
// freely-typed mappings of the source platform (Design Notes §9). Only one
// field is meaningful per Kind.
type Scalar struct {
	Kind ScalarKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
	Time time.Time
}

func StringScalar(v string) Scalar   { return Scalar{Kind: ScalarString, Str: v} }
func Int64Scalar(v int64) Scalar     { return Scalar{Kind: ScalarInt64, Int: v} }
func FloatScalar(v float64) Scalar   { return Scalar{Kind: ScalarFloat, Flt: v} }
func BoolScalar(v bool) Scalar       { return Scalar{Kind: ScalarBool, Bool: v} }
func TimeScalar(v time.Time) Scalar  { return Scalar{Kind: ScalarTime, Time: v} }

// RetryBackoff describes the exponential-with-jitter retry schedule
// (spec §4.5): delay(attempt) = min(cap, initial*multiplier^(attempt-1)) * jitter.
type RetryBackoff struct {
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
	Jitter     float64 // fraction in [0,1); delay is scaled by uniform(1-jitter, 1+jitter)
}

// Delay computes the backoff delay for the given 1-based attempt number,
// using rand in [0,1) supplied by the caller so the formula stays pure and
// testable (Testable Property 4 requires checking the formula deterministically).
func (b RetryBackoff) Delay(attempt int, rand01 float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(b.Initial) * pow(b.Multiplier, float64(attempt-1))
	if capF := float64(b.Cap); b.Cap > 0 && raw > capF {
		raw = capF
	}
	if b.Jitter > 0 {
		factor := (1 - b.Jitter) + rand01*2*b.Jitter
		raw *= factor
	}
	return time.Duration(raw)
}

func pow(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// ResourceAsk is the resource demand an envelope places on a worker.
type ResourceAsk struct {
	CPUShares   float64
	MemoryBytes int64
	Slots       int // default 1
}

// Envelope is the common work unit carried by the engine (spec §3).
type Envelope struct {
	ID          string
	Kind        Kind
	Correlation string
	Parent      string

	Payload     []byte
	ContentType string
	Headers     map[string]Scalar
	Attributes  map[string]Scalar

	RoutingKey string
	Priority   int // 0-10
	EnqueuedAt time.Time
	NotBefore  time.Time
	ExpiresAt  time.Time

	Attempt     int
	MaxAttempts int
	Backoff     RetryBackoff

	RequiredCapabilities []string
	ResourceAsk          ResourceAsk

	AckMode        AckMode
	RequeueOnNack  bool

	State          State
	TopologyVersion uint64

	// OriginalID is set on dead-lettered envelopes synthesized for the DLQ,
	// preserving the terminally-undeliverable envelope's own id (spec §4.5).
	OriginalID string
	Reason     string

	// cancel is signaled on revoke/cancel; checked at the next cooperative
	// yield point (spec §5).
	cancelled bool
}

// New builds a pending envelope with a fresh id and sane defaults.
func New(kind Kind) *Envelope {
	now := time.Now()
	return &Envelope{
		ID:          uuid.New().String(),
		Kind:        kind,
		Headers:     make(map[string]Scalar),
		Attributes:  make(map[string]Scalar),
		EnqueuedAt:  now,
		MaxAttempts: 1,
		ResourceAsk: ResourceAsk{Slots: 1},
		AckMode:     AckAuto,
		State:       StatePending,
	}
}

// Ready reports whether the envelope's not-before has elapsed as of t.
func (e *Envelope) Ready(t time.Time) bool {
	return !e.NotBefore.After(t)
}

// Expired reports whether the envelope's TTL has elapsed as of t.
func (e *Envelope) Expired(t time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(t)
}

// Cancel marks the envelope's cancellation token; honored at the next
// polling point or cooperative yield (spec §5), never pre-empted mid-step.
func (e *Envelope) Cancel() { e.cancelled = true }

// Cancelled reports whether Cancel was called.
func (e *Envelope) Cancelled() bool { return e.cancelled }

// DeadLetter synthesizes a new envelope for the DLQ, preserving the
// original id, payload, headers, and recording the terminal reason
// (spec §4.5: "a new envelope is synthesized preserving original id").
func (e *Envelope) DeadLetter(reason string) *Envelope {
	dl := New(e.Kind)
	dl.OriginalID = e.ID
	dl.Correlation = e.Correlation
	dl.Payload = e.Payload
	dl.ContentType = e.ContentType
	dl.Headers = cloneScalars(e.Headers)
	dl.RoutingKey = e.RoutingKey
	dl.Reason = reason
	dl.State = StateDeadLettered
	return dl
}

func cloneScalars(m map[string]Scalar) map[string]Scalar {
	out := make(map[string]Scalar, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
