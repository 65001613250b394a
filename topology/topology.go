// Package topology is the Dispatch Engine's declarative catalog: exchanges,
// queues, bindings, task/job/workflow definitions, and route rules. It is
// the single writer for these entities (spec §3 Ownership); every other
// component reads an immutable snapshot.
//
// Grounded on registry/registry.go's load/mutate/save cycle, generalized
// from one map[string]*Service to one map per entity kind.
package topology

import (
	"fmt"
	"sync"
)

// ExchangeKind is the routing algorithm an Exchange uses (spec §3).
type ExchangeKind string

const (
	ExchangeDirect  ExchangeKind = "direct"
	ExchangeFanout  ExchangeKind = "fanout"
	ExchangeTopic   ExchangeKind = "topic"
	ExchangeHeaders ExchangeKind = "headers"
)

// Exchange is a publication endpoint that binds to queues via rules.
type Exchange struct {
	Name      string
	Kind      ExchangeKind
	Alternate string // fallback exchange name, tried once if no binding matches
	Durable   bool   // informational only
}

// Ordering is how a Queue dequeues accumulated envelopes.
type Ordering string

const (
	OrderingFIFO     Ordering = "fifo"
	OrderingPriority Ordering = "priority"
)

// DeadLetterTarget names where an undeliverable envelope is redirected.
type DeadLetterTarget struct {
	Exchange   string
	RoutingKey string
}

// Queue is a named destination on which envelopes accumulate until leased.
type Queue struct {
	Name             string
	CapabilityLabels []string
	MaxLength        int
	MaxLengthBytes   int64
	MessageTTL       int64 // nanoseconds; 0 = no TTL
	DeadLetterTarget *DeadLetterTarget
	PriorityLevels   int
	Ordering         Ordering

	// Stranded is set when no registered worker can satisfy
	// CapabilityLabels; observable, not fatal (spec §3 Invariants).
	Stranded bool
}

// HeadersMatch selects all or any of a binding's K=V pairs.
type HeadersMatch string

const (
	HeadersMatchAll HeadersMatch = "all"
	HeadersMatchAny HeadersMatch = "any"
)

// Binding attaches a destination queue (or exchange, for exchange-to-exchange
// chaining) to a source exchange with a match spec.
type Binding struct {
	ID          string
	Source      string // exchange name
	Destination string // queue name (or exchange name if DestIsExchange)
	DestIsExchange bool

	// RoutingKey is used for direct exchanges; Pattern for topic exchanges.
	RoutingKey string
	Pattern    string

	// Headers predicate, used for headers exchanges.
	HeadersSelector HeadersMatch
	HeadersPairs    map[string]string
}

// RetryPolicy is the exponential-with-jitter backoff spec shared by tasks
// and jobs (spec §4.5).
type RetryPolicy struct {
	MaxAttempts int
	Initial     int64 // nanoseconds
	Multiplier  float64
	Cap         int64 // nanoseconds
	Jitter      float64
}

// RateLimitSpec configures a task definition's token bucket (spec §4.3).
type RateLimitSpec struct {
	FillRatePerSecond float64
	Burst             int
}

// TaskDefinition declares a task's target queue, limits, and policies.
type TaskDefinition struct {
	Name            string
	TargetQueue     string
	RateLimit       *RateLimitSpec
	SoftTimeLimit   int64 // nanoseconds
	HardTimeLimit   int64
	Retry           RetryPolicy
	AckMode         string
	ResultRetention int64
}

// RouteRule maps a glob task-name pattern to a queue with a tie-broken
// priority (spec §3, §4.2).
type RouteRule struct {
	ID       string
	Pattern  string
	Queue    string
	Priority int
}

// TriggerKind is how a JobDefinition fires.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerDate     TriggerKind = "date"
	TriggerManual   TriggerKind = "manual"
	TriggerEvent    TriggerKind = "event"
)

// JobDefinition declares a scheduled unit of work with dependencies.
type JobDefinition struct {
	Name           string
	CommandID      string
	TargetQueue    string
	Trigger        TriggerKind
	CronExpression string
	DependsOn      []string
	ResourceAsk    envelopeResourceAsk
	Retry          RetryPolicy
}

// envelopeResourceAsk avoids an import cycle with package envelope while
// keeping the same shape; runtime code converts between the two at the edge.
type envelopeResourceAsk struct {
	CPUShares   float64
	MemoryBytes int64
	Slots       int
}

// Snapshot is an immutable, versioned view of the topology, safe for
// concurrent lock-free reads (spec §4.1 Guarantees: "readers observe a
// consistent snapshot version; no torn reads across related entities").
type Snapshot struct {
	Version   uint64
	Exchanges map[string]Exchange
	Queues    map[string]Queue
	Bindings  map[string][]Binding // keyed by source exchange name
	Tasks     map[string]TaskDefinition
	Jobs      map[string]JobDefinition
	Routes    []RouteRule
	bindingsByID map[string]Binding
}

// Registry is the single writer for all declarative entities.
type Registry struct {
	mu      sync.RWMutex
	version uint64

	exchanges map[string]Exchange
	queues    map[string]Queue
	bindings  map[string]Binding // by binding ID
	tasks     map[string]TaskDefinition
	jobs      map[string]JobDefinition
	routes    map[string]RouteRule

	// generations retains prior snapshots until no in-flight envelope
	// references them; bounded ring mirroring statemanager.Manager's
	// bounded eviction idiom but keyed by reference count instead of age.
	generations   map[uint64]*Snapshot
	refcounts     map[uint64]int
	maxGenerations int
}

// New creates an empty, validated-on-write Registry.
func New() *Registry {
	return &Registry{
		exchanges:      make(map[string]Exchange),
		queues:         make(map[string]Queue),
		bindings:       make(map[string]Binding),
		tasks:          make(map[string]TaskDefinition),
		jobs:           make(map[string]JobDefinition),
		routes:         make(map[string]RouteRule),
		generations:    make(map[uint64]*Snapshot),
		refcounts:      make(map[uint64]int),
		maxGenerations: 8,
	}
}

// ValidationError is raised synchronously by declare-* operations on
// dangling references, duplicate names, invalid patterns, or DLQ cycles.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation(%s): %s", e.Op, e.Message) }

// DeclareExchange registers or replaces an exchange by name.
func (r *Registry) DeclareExchange(ex Exchange) error {
	if ex.Name == "" {
		return &ValidationError{"declare-exchange", "name required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[ex.Name] = ex
	r.bumpVersion()
	return nil
}

// DeclareQueue registers or replaces a queue by name.
func (r *Registry) DeclareQueue(q Queue) error {
	if q.Name == "" {
		return &ValidationError{"declare-queue", "name required"}
	}
	if q.Ordering == "" {
		q.Ordering = OrderingFIFO
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// no DLQ cycles: a queue must not dead-letter into an exchange bound
	// back to itself directly (spec §3 Invariants).
	if q.DeadLetterTarget != nil && q.DeadLetterTarget.Exchange == q.Name {
		return &ValidationError{"declare-queue", "dead-letter target must not cycle into the queue itself"}
	}
	r.queues[q.Name] = q
	r.bumpVersion()
	return nil
}

// DeclareBinding registers a binding; both source and destination must
// already be registered (spec §4.1).
func (r *Registry) DeclareBinding(b Binding) error {
	if b.ID == "" {
		return &ValidationError{"declare-binding", "id required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exchanges[b.Source]; !ok {
		return &ValidationError{"declare-binding", fmt.Sprintf("unknown source exchange %q", b.Source)}
	}
	if b.DestIsExchange {
		if _, ok := r.exchanges[b.Destination]; !ok {
			return &ValidationError{"declare-binding", fmt.Sprintf("unknown destination exchange %q", b.Destination)}
		}
	} else if _, ok := r.queues[b.Destination]; !ok {
		return &ValidationError{"declare-binding", fmt.Sprintf("unknown destination queue %q", b.Destination)}
	}
	r.bindings[b.ID] = b
	r.bumpVersion()
	return nil
}

// DeclareTask registers or replaces a task definition.
func (r *Registry) DeclareTask(t TaskDefinition) error {
	if t.Name == "" {
		return &ValidationError{"declare-task", "name required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[t.TargetQueue]; t.TargetQueue != "" && !ok {
		return &ValidationError{"declare-task", fmt.Sprintf("unknown target queue %q", t.TargetQueue)}
	}
	r.tasks[t.Name] = t
	r.bumpVersion()
	return nil
}

// DeclareJob registers or replaces a job definition. Dependency names are
// not validated against existence here (dependencies may be declared in
// either order); the Scheduler's dependency gate resolves them at run time.
func (r *Registry) DeclareJob(j JobDefinition) error {
	if j.Name == "" {
		return &ValidationError{"declare-job", "name required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.Name] = j
	r.bumpVersion()
	return nil
}

// DeclareRoute registers a glob pattern -> queue routing rule.
func (r *Registry) DeclareRoute(rule RouteRule) error {
	if rule.ID == "" || rule.Pattern == "" {
		return &ValidationError{"declare-route", "id and pattern required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[rule.Queue]; !ok {
		return &ValidationError{"declare-route", fmt.Sprintf("unknown queue %q", rule.Queue)}
	}
	r.routes[rule.ID] = rule
	r.bumpVersion()
	return nil
}

func (r *Registry) bumpVersion() { r.version++ }

// Snapshot returns a consistent, immutable view for readers. Callers should
// call Release(snap.Version) once no in-flight envelope references it.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()

	bindingsBySource := make(map[string][]Binding)
	byID := make(map[string]Binding, len(r.bindings))
	for _, b := range r.bindings {
		bindingsBySource[b.Source] = append(bindingsBySource[b.Source], b)
		byID[b.ID] = b
	}
	routes := make([]RouteRule, 0, len(r.routes))
	for _, rule := range r.routes {
		routes = append(routes, rule)
	}

	snap := &Snapshot{
		Version:      r.version,
		Exchanges:    copyExchanges(r.exchanges),
		Queues:       copyQueues(r.queues),
		Bindings:     bindingsBySource,
		Tasks:        copyTasks(r.tasks),
		Jobs:         copyJobs(r.jobs),
		Routes:       routes,
		bindingsByID: byID,
	}

	r.mu.RUnlock()

	r.mu.Lock()
	r.generations[snap.Version] = snap
	r.refcounts[snap.Version]++
	r.gcGenerationsLocked()
	r.mu.Unlock()

	return snap
}

// Release decrements the reference count for a snapshot version, allowing
// it to be garbage collected once no envelope references it (spec §4.1:
// "old version is retained until no in-flight envelope references it").
func (r *Registry) Release(version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refcounts[version] > 0 {
		r.refcounts[version]--
	}
	r.gcGenerationsLocked()
}

func (r *Registry) gcGenerationsLocked() {
	if len(r.generations) <= r.maxGenerations {
		return
	}
	for v, n := range r.refcounts {
		if n <= 0 && v != r.version {
			delete(r.generations, v)
			delete(r.refcounts, v)
		}
	}
}

func copyExchanges(m map[string]Exchange) map[string]Exchange {
	out := make(map[string]Exchange, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyQueues(m map[string]Queue) map[string]Queue {
	out := make(map[string]Queue, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTasks(m map[string]TaskDefinition) map[string]TaskDefinition {
	out := make(map[string]TaskDefinition, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyJobs(m map[string]JobDefinition) map[string]JobDefinition {
	out := make(map[string]JobDefinition, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup by name helpers, O(1) as required by spec §4.1.

func (s *Snapshot) Exchange(name string) (Exchange, bool) { e, ok := s.Exchanges[name]; return e, ok }
func (s *Snapshot) Queue(name string) (Queue, bool)       { q, ok := s.Queues[name]; return q, ok }
func (s *Snapshot) Task(name string) (TaskDefinition, bool) { t, ok := s.Tasks[name]; return t, ok }
func (s *Snapshot) Job(name string) (JobDefinition, bool) { j, ok := s.Jobs[name]; return j, ok }

// ListBindingsFrom returns bindings sourced from the named exchange,
// pre-indexed at snapshot time (spec §4.1).
func (s *Snapshot) ListBindingsFrom(exchange string) []Binding {
	return s.Bindings[exchange]
}

// ListRoutesMatching returns route rules whose pattern matches taskName,
// sorted by descending priority then ascending id for determinism
// (spec §4.2 tie-break).
func (s *Snapshot) ListRoutesMatching(taskName string) []RouteRule {
	var matches []RouteRule
	for _, rule := range s.Routes {
		if globMatch(rule.Pattern, taskName) {
			matches = append(matches, rule)
		}
	}
	sortRoutes(matches)
	return matches
}

func sortRoutes(rules []RouteRule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0; j-- {
			a, b := rules[j-1], rules[j]
			if a.Priority < b.Priority || (a.Priority == b.Priority && a.ID > b.ID) {
				rules[j-1], rules[j] = rules[j], rules[j-1]
			} else {
				break
			}
		}
	}
}

// globMatch implements a simple glob over task names: '*' matches any run
// of characters, '?' matches exactly one. Sufficient for route-rule
// task-name patterns (spec §3 "pattern (glob over task name)").
func globMatch(pattern, name string) bool {
	return globMatchRec(pattern, name)
}

func globMatchRec(pattern, name string) bool {
	if pattern == "" {
		return name == ""
	}
	switch pattern[0] {
	case '*':
		if globMatchRec(pattern[1:], name) {
			return true
		}
		for i := 0; i < len(name); i++ {
			if globMatchRec(pattern[1:], name[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if name == "" {
			return false
		}
		return globMatchRec(pattern[1:], name[1:])
	default:
		if name == "" || name[0] != pattern[0] {
			return false
		}
		return globMatchRec(pattern[1:], name[1:])
	}
}
