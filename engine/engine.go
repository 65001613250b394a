// Package engine wires the Topology Registry, Router, Job Scheduler,
// Worker Pool Manager, Execution Runtime, and Workflow Interpreter into
// the Producer/Consumer/Control/Introspection operations the external
// interfaces (spec §6) expose. It is the one place that holds a reference
// to every subsystem; api/ and cli/ call through it instead of wiring
// subsystems directly.
//
// Grounded on semantic/actionregistry.go's name-keyed dispatch idiom,
// generalized from one registry of action handlers to one struct holding
// every owning subsystem (spec §5 Shared-resource policy: no data
// structure is mutated from outside its owning component).
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"dispatch.evalgo.org/config"
	"dispatch.evalgo.org/coordinator"
	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/observability"
	"dispatch.evalgo.org/reason"
	"dispatch.evalgo.org/router"
	"dispatch.evalgo.org/runtime"
	"dispatch.evalgo.org/scheduler"
	"dispatch.evalgo.org/topology"
	"dispatch.evalgo.org/workerpool"
	"dispatch.evalgo.org/workflow"
)

// Engine owns every subsystem and implements the operations the Producer,
// Consumer, Control, and Introspection APIs expose.
type Engine struct {
	cfg *config.AllConfig
	log *logrus.Entry

	Topology  *topology.Registry
	Scheduler *scheduler.Scheduler
	Workers   *workerpool.Pool
	Runtime   *runtime.Runtime
	Metrics   *observability.Metrics
	Audit     *observability.AuditLog
	Leases    *coordinator.LeaseStateManager

	mu        sync.Mutex
	envelopes map[string]*envelope.Envelope
	leases    map[string]leaseInfo // envelopeID -> worker/queue it was placed on
	workflows map[string]*workflow.Instance
	graphs    map[string]*workflow.Graph
	queues    map[string][]string // queue name -> ready envelope IDs, in dequeue order
	paused    map[string]bool
}

type leaseInfo struct {
	workerID string
	queue    string
}

// New wires a fresh Engine. reg is where Prometheus metrics register
// (tests pass prometheus.NewRegistry(); production passes
// prometheus.DefaultRegisterer). log defaults to the standard logger if nil.
func New(cfg *config.AllConfig, reg prometheus.Registerer, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{
		cfg:       cfg,
		log:       log.WithField("component", "engine"),
		Topology:  topology.New(),
		Metrics:   observability.NewMetrics(reg),
		Audit:     observability.NewAuditLog(cfg.Observability.AuditLogMax),
		Leases:    coordinator.NewLeaseStateManager(),
		envelopes: make(map[string]*envelope.Envelope),
		leases:    make(map[string]leaseInfo),
		workflows: make(map[string]*workflow.Instance),
		graphs:    make(map[string]*workflow.Graph),
		queues:    make(map[string][]string),
		paused:    make(map[string]bool),
	}

	e.Workers = workerpool.New(workerpool.Config{
		Strategy:            workerpool.Strategy(cfg.WorkerPool.Strategy),
		HeartbeatInterval:   cfg.WorkerPool.HeartbeatInterval,
		MissedHeartbeatsMax: cfg.WorkerPool.MissedHeartbeatsMax,
	})

	e.Scheduler = scheduler.New(scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
	})

	e.Runtime = runtime.New(runtime.NewRegistry(), runtime.DefaultConfig())

	return e
}

// Start launches the Scheduler's background loops. No Worker Pool
// heartbeat monitor is started, so a worker that stops heartbeating is not
// marked offline and its leases are not reclaimed. Call once after every
// Control-API declaration the deployment needs at boot has been made.
func (e *Engine) Start() {
	e.Scheduler.Start()
}

// Stop halts background loops. Safe to call once during shutdown.
func (e *Engine) Stop() {
	e.Scheduler.Stop()
}

// --- Producer API (spec §6) -------------------------------------------------

// Publish routes a payload through an exchange and enqueues it on every
// matched destination queue, returning the new envelope's id.
func (e *Engine) Publish(exchangeName, routingKey string, payload []byte, headers map[string]string, priority int, notBefore, expiresAt time.Time, correlation, parent string) (string, error) {
	snap := e.Topology.Snapshot()
	result := router.Route(snap, exchangeName, routingKey, headers, "")

	env := envelope.New(envelope.KindMessage)
	env.RoutingKey = routingKey
	env.Payload = payload
	env.Priority = priority
	env.NotBefore = notBefore
	env.ExpiresAt = expiresAt
	env.Correlation = correlation
	env.Parent = parent
	env.TopologyVersion = snap.Version
	for k, v := range headers {
		env.Headers[k] = envelope.StringScalar(v)
	}

	if result.Reason != router.ReasonNone {
		e.Audit.Record(observability.AuditEntry{
			EnvelopeID: env.ID,
			FromState:  string(envelope.StatePending),
			ToState:    "unroutable",
			Reason:     string(result.Reason),
		})
		e.log.WithFields(logrus.Fields{"exchange": exchangeName, "routingKey": routingKey, "reason": result.Reason}).Warn("publish unroutable")
		return env.ID, fmt.Errorf("unroutable: %s", result.Reason)
	}

	e.enqueue(env, result.Queues)
	return env.ID, nil
}

// SubmitTask resolves a task definition's target queue and enqueues a task
// envelope, honoring the task's rate limit (spec §4.3).
func (e *Engine) SubmitTask(taskName string, args map[string]string, priority int, notBefore time.Time, correlation string) (string, error) {
	snap := e.Topology.Snapshot()
	task, ok := snap.Task(taskName)
	if !ok {
		return "", fmt.Errorf("not-found: task %s", taskName)
	}

	if !e.Scheduler.TryAdmit(taskName) {
		return "", fmt.Errorf("rate-limited: task %s", taskName)
	}

	env := envelope.New(envelope.KindTask)
	env.RoutingKey = taskName
	env.Priority = priority
	env.NotBefore = notBefore
	env.Correlation = correlation
	env.MaxAttempts = task.Retry.MaxAttempts
	env.TopologyVersion = snap.Version
	for k, v := range args {
		env.Attributes[k] = envelope.StringScalar(v)
	}

	if notBefore.After(time.Now()) {
		e.track(env)
		e.Scheduler.DelayEnvelope(env)
		return env.ID, nil
	}

	e.enqueue(env, []string{task.TargetQueue})
	return env.ID, nil
}

// TriggerJob enqueues a run of a declared job immediately, bypassing its
// cron trigger but still honoring declared dependencies (spec §6).
func (e *Engine) TriggerJob(jobName string) (string, error) {
	snap := e.Topology.Snapshot()
	job, ok := snap.Job(jobName)
	if !ok {
		return "", fmt.Errorf("not-found: job %s", jobName)
	}
	if !e.Scheduler.DependencyGate().Satisfied(job.DependsOn) {
		return "", fmt.Errorf("dependency-unsatisfied: job %s", jobName)
	}

	env := envelope.New(envelope.KindJobRun)
	env.RoutingKey = jobName
	env.MaxAttempts = job.Retry.MaxAttempts
	env.TopologyVersion = snap.Version

	e.enqueue(env, []string{job.TargetQueue})
	return env.ID, nil
}

// StartWorkflow expands a declared graph into a running instance.
func (e *Engine) StartWorkflow(workflowName string, variables map[string]interface{}, initiator, businessKey string) (string, error) {
	e.mu.Lock()
	graph, ok := e.graphs[workflowName]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("not-found: workflow %s", workflowName)
	}

	inst := workflow.Expand(graph, variables)
	if err := inst.Start(); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.workflows[inst.ID] = inst
	e.mu.Unlock()

	e.Audit.Record(observability.AuditEntry{
		EnvelopeID: inst.ID,
		ToState:    "started",
		Actor:      initiator,
	})
	e.log.WithFields(logrus.Fields{"workflow": workflowName, "instance": inst.ID, "businessKey": businessKey}).Info("workflow instance started")
	return inst.ID, nil
}

// DeclareWorkflow registers a parsed graph under a name so StartWorkflow
// can expand instances of it.
func (e *Engine) DeclareWorkflow(name string, graph *workflow.Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphs[name] = graph
}

// --- Consumer API (spec §6) -------------------------------------------------

// RegisterWorker admits a worker into the pool.
func (e *Engine) RegisterWorker(id string, queues, capabilities []string, resources envelope.ResourceAsk) {
	e.Workers.Register(id, queues, capabilities, resources)
}

// AcquireLease places the next ready envelope from queueName onto whichever
// worker the pool's placement strategy selects (spec §4.4: placement is the
// Worker Pool Manager's decision, not the polling worker's). Returns a nil
// envelope if the queue is empty or no worker currently qualifies.
func (e *Engine) AcquireLease(queueName string) (workerID string, env *envelope.Envelope, err error) {
	e.mu.Lock()
	if e.paused[queueName] || len(e.queues[queueName]) == 0 {
		e.mu.Unlock()
		return "", nil, nil
	}
	envID := e.queues[queueName][0]
	candidate := e.envelopes[envID]
	e.queues[queueName] = e.queues[queueName][1:]
	e.mu.Unlock()

	if candidate == nil {
		return "", nil, nil
	}

	workerID, placeErr := e.Workers.Place(queueName, candidate.RequiredCapabilities, candidate.ResourceAsk)
	if placeErr != nil {
		e.mu.Lock()
		e.queues[queueName] = append([]string{envID}, e.queues[queueName]...)
		e.mu.Unlock()
		return "", nil, nil
	}

	e.mu.Lock()
	candidate.State = envelope.StateRunning
	candidate.Attempt++
	e.leases[envID] = leaseInfo{workerID: workerID, queue: queueName}
	e.mu.Unlock()

	e.Leases.Offer(envID, workerID)
	e.Leases.TransitionTo(envID, coordinator.LeaseAccepted, "placed")
	e.Leases.TransitionTo(envID, coordinator.LeaseRunning, "dispatched")

	e.Workers.Lease(workerID, envID)
	e.Metrics.EnvelopesDispatched.WithLabelValues(queueName, workerID).Inc()
	return workerID, candidate, nil
}

// Ack completes a lease successfully.
func (e *Engine) Ack(envelopeID string) error {
	return e.completeLease(envelopeID, envelope.StateSuccess, "")
}

// Nack fails a lease, requeueing the envelope if requested and attempts remain.
func (e *Engine) Nack(envelopeID string, requeue bool) error {
	e.mu.Lock()
	env, ok := e.envelopes[envelopeID]
	li := e.leases[envelopeID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("not-found: envelope %s", envelopeID)
	}

	e.Workers.Release(li.workerID, envelopeID, env.ResourceAsk)

	if requeue && env.Attempt < env.MaxAttempts {
		e.Leases.Revoke(envelopeID, "nacked for redelivery")
		e.Leases.RemoveLease(envelopeID)

		e.mu.Lock()
		env.State = envelope.StateReady
		e.queues[li.queue] = append(e.queues[li.queue], envelopeID)
		delete(e.leases, envelopeID)
		e.mu.Unlock()
		return nil
	}

	return e.completeLease(envelopeID, envelope.StateDeadLettered, string(reason.MaxAttempts))
}

// ExtendLease is a no-op placeholder for worker-requested lease extension;
// the in-memory placement model has no lease-expiry clock to push out, only
// the Worker Pool's heartbeat-reclaim deadline, which Heartbeat refreshes.
func (e *Engine) ExtendLease(workerID string, _ time.Duration) {
	e.Workers.Heartbeat(workerID)
}

// Heartbeat refreshes a worker's liveness deadline.
func (e *Engine) Heartbeat(workerID string) {
	e.Workers.Heartbeat(workerID)
}

func (e *Engine) completeLease(envelopeID string, final envelope.State, reasonStr string) error {
	e.mu.Lock()
	env, ok := e.envelopes[envelopeID]
	li := e.leases[envelopeID]
	if ok {
		env.State = final
		env.Reason = reasonStr
	}
	delete(e.leases, envelopeID)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("not-found: envelope %s", envelopeID)
	}

	leaseOutcome := coordinator.LeaseCompleted
	switch final {
	case envelope.StateSuccess:
		leaseOutcome = coordinator.LeaseCompleted
	case envelope.StateRevoked:
		leaseOutcome = coordinator.LeaseRevoked
	default:
		leaseOutcome = coordinator.LeaseFailed
	}
	e.Leases.TransitionTo(envelopeID, leaseOutcome, reasonStr)
	e.Leases.RemoveLease(envelopeID)

	e.Workers.Release(li.workerID, envelopeID, env.ResourceAsk)
	e.Metrics.EnvelopesTerminal.WithLabelValues(li.queue, string(final), reasonStr).Inc()
	e.Audit.Record(observability.AuditEntry{
		EnvelopeID: envelopeID,
		Queue:      li.queue,
		FromState:  string(envelope.StateRunning),
		ToState:    string(final),
		Reason:     reasonStr,
	})
	return nil
}

// --- Control API (spec §6) --------------------------------------------------

// PauseQueue and ResumeQueue gate AcquireLease without discarding queued
// envelopes (spec §4.1: a paused queue keeps accepting Publish/SubmitTask,
// it only stops handing out leases).
func (e *Engine) PauseQueue(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused[name] = true
}

func (e *Engine) ResumeQueue(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.paused, name)
}

// DrainWorker marks a worker ineligible for new placements; its
// in-flight leases are left to finish or time out normally.
func (e *Engine) DrainWorker(workerID string) {
	e.Workers.Drain(workerID)
	e.log.WithFields(logrus.Fields{
		"worker":        workerID,
		"active_leases": len(e.Leases.LeasesForWorker(workerID)),
	}).Info("worker drained")
}

// RevokeEnvelope cancels an envelope's cooperative token.
func (e *Engine) RevokeEnvelope(envelopeID, reasonStr string) error {
	e.mu.Lock()
	env, ok := e.envelopes[envelopeID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("not-found: envelope %s", envelopeID)
	}
	env.Cancel()
	return e.completeLease(envelopeID, envelope.StateRevoked, reasonStr)
}

// CancelWorkflowInstance cancels a workflow instance: its pending node queue
// and its human-task and event-gateway waits are cleared. No envelope is
// revoked.
func (e *Engine) CancelWorkflowInstance(instanceID string) error {
	e.mu.Lock()
	inst, ok := e.workflows[instanceID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("not-found: workflow instance %s", instanceID)
	}
	inst.Cancel()
	return nil
}

// CompleteHumanTask resolves a pending human-task node within a workflow
// instance.
func (e *Engine) CompleteHumanTask(instanceID, taskID string) error {
	e.mu.Lock()
	inst, ok := e.workflows[instanceID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("not-found: workflow instance %s", instanceID)
	}
	return inst.CompleteHumanTask(taskID)
}

// --- Introspection API (spec §6) -------------------------------------------

// ListQueues returns every declared queue name, sorted.
func (e *Engine) ListQueues() []string {
	snap := e.Topology.Snapshot()
	names := make([]string, 0, len(snap.Queues))
	for name := range snap.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QueueStats reports the current ready-envelope depth of a queue.
func (e *Engine) QueueStats(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queues[name])
}

// DescribeEnvelope returns the current snapshot of an envelope, if known.
func (e *Engine) DescribeEnvelope(id string) (*envelope.Envelope, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	env, ok := e.envelopes[id]
	return env, ok
}

// GetWorkflowInstance returns a running workflow instance, if known.
func (e *Engine) GetWorkflowInstance(id string) (*workflow.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.workflows[id]
	return inst, ok
}

// QueryAudit returns up to limit audit entries for envelopeID (all
// envelopes if envelopeID is empty), most recent last.
func (e *Engine) QueryAudit(envelopeID string, limit int) []observability.AuditEntry {
	var entries []observability.AuditEntry
	if envelopeID == "" {
		entries = e.Audit.List()
	} else {
		entries = e.Audit.ForEnvelope(envelopeID)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// GetMetric exposes the underlying Metrics struct for handlers that need
// to render a specific family (e.g. over HTTP as Prometheus text format via
// promhttp, or filtered to one queue/worker for an introspection query).
// The engine does not interpret metric names itself; it owns registration
// and leaves presentation to the caller.
func (e *Engine) GetMetric() *observability.Metrics {
	return e.Metrics
}

// --- internal helpers --------------------------------------------------------

func (e *Engine) track(env *envelope.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envelopes[env.ID] = env
}

func (e *Engine) enqueue(env *envelope.Envelope, destinationQueues []string) {
	env.State = envelope.StateReady
	e.track(env)
	snap := e.Topology.Snapshot()
	defer e.Topology.Release(snap.Version)

	e.mu.Lock()
	for _, q := range destinationQueues {
		ids := e.queues[q]
		// Priority-ordered queues keep higher priorities first and FIFO
		// within a level; every other queue is plain FIFO.
		pos := len(ids)
		if qd, ok := snap.Queue(q); ok && qd.Ordering == topology.OrderingPriority {
			for pos > 0 && e.envelopes[ids[pos-1]] != nil && e.envelopes[ids[pos-1]].Priority < env.Priority {
				pos--
			}
		}
		ids = append(ids, "")
		copy(ids[pos+1:], ids[pos:])
		ids[pos] = env.ID
		e.queues[q] = ids
	}
	e.mu.Unlock()

	for _, q := range destinationQueues {
		e.Metrics.EnvelopesEnqueued.WithLabelValues(q).Inc()
		e.Metrics.QueueDepth.WithLabelValues(q).Set(float64(e.QueueStats(q)))
	}
}
