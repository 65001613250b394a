// Package scheduler implements the Job Scheduler component (spec §4.3):
// cron/interval/date triggers, a dependency gate, per-task-definition rate
// limiting, and a delay queue feeding the Execution Runtime. Its
// background-goroutine lifecycle (ctx/cancel, sync.WaitGroup, a handful of
// named loop goroutines) is grounded on coordinator.Coordinator's
// connectionLoop/senderLoop/pingLoop trio.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/ratelimit"
	"dispatch.evalgo.org/topology"
)

// FireEvent is emitted on the Scheduler's Ready channel when a job's
// trigger fires and its dependencies and rate limit both admit it, and when
// a delayed envelope's NotBefore elapses (JobName then holds the envelope
// id and TargetTask is empty).
type FireEvent struct {
	JobName    string
	TargetTask string
	FiredAt    time.Time
}

// Config configures the Scheduler's polling cadence. Production deployments
// poll frequently since cron resolution is one minute; the tick interval
// only bounds how promptly a due fire is observed.
type Config struct {
	TickInterval time.Duration
	Logger       *logrus.Entry
}

// DefaultConfig returns sensible polling defaults.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

// Scheduler ties together cron evaluation, the dependency gate, per-task
// rate limiters, the delay queue, and the timer registry into one
// component with its own goroutine lifecycle.
type Scheduler struct {
	cfg    Config
	logger *logrus.Entry

	mu        sync.RWMutex
	cronJobs  map[string]*scheduledJob
	limiters  map[string]*ratelimit.Bucket
	dependsOn map[string][]string

	gate   *DependencyGate
	delay  *DelayQueue
	timers *TimerRegistry

	readyCh chan FireEvent
	timerCh chan *Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type scheduledJob struct {
	def        topology.JobDefinition
	cron       *CronSchedule
	nextFireAt time.Time
}

// New creates a Scheduler. Call Start to begin its background loops.
func New(cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		logger:    cfg.Logger.WithField("component", "scheduler"),
		cronJobs:  make(map[string]*scheduledJob),
		limiters:  make(map[string]*ratelimit.Bucket),
		dependsOn: make(map[string][]string),
		gate:      NewDependencyGate(),
		delay:     NewDelayQueue(),
		timers:    NewTimerRegistry(),
		readyCh:   make(chan FireEvent, 256),
		timerCh:   make(chan *Timer, 256),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Ready returns the channel of fired, dependency-satisfied, rate-limit
// admitted job triggers and of delayed envelopes that became ready.
func (s *Scheduler) Ready() <-chan FireEvent { return s.readyCh }

// TimerFired returns the channel of elapsed workflow timers.
func (s *Scheduler) TimerFired() <-chan *Timer { return s.timerCh }

// DependencyGate exposes the gate so the Execution Runtime can record run
// outcomes as jobs complete.
func (s *Scheduler) DependencyGate() *DependencyGate { return s.gate }

// Timers exposes the timer registry so the Workflow Interpreter can
// register duration/date/boundary timers.
func (s *Scheduler) Timers() *TimerRegistry { return s.timers }

// AddJob registers a job definition for cron evaluation. Non-cron triggers
// (interval, date, manual, event) are expected to be driven externally via
// Delay/Enqueue rather than this cron path.
func (s *Scheduler) AddJob(def topology.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj := &scheduledJob{def: def}
	if def.Trigger == topology.TriggerCron {
		cs, err := ParseCron(def.CronExpression)
		if err != nil {
			return err
		}
		sj.cron = cs
		sj.nextFireAt = cs.NextFire(time.Now())
	}
	s.cronJobs[def.Name] = sj
	s.dependsOn[def.Name] = def.DependsOn
	return nil
}

// SetRateLimit installs or replaces the token bucket for a task definition.
func (s *Scheduler) SetRateLimit(taskName string, cfg ratelimit.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[taskName] = ratelimit.New(cfg)
}

// DelayEnvelope schedules an envelope to become ready once its NotBefore
// elapses (spec §4.1: Envelope transitions pending->ready at
// max(EnqueuedAt, NotBefore)).
func (s *Scheduler) DelayEnvelope(e *envelope.Envelope) {
	s.delay.Push(e.ID, e.NotBefore)
}

// TryAdmit attempts to consume one slot from a task definition's rate
// limiter. Tasks with no configured limiter are always admitted.
func (s *Scheduler) TryAdmit(taskName string) bool {
	s.mu.RLock()
	b, ok := s.limiters[taskName]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	return b.TryAcquire(1)
}

// Start launches the cron-evaluation, delay-queue, and timer background
// loops. Cancel via Stop.
func (s *Scheduler) Start() {
	s.wg.Add(3)
	go s.cronLoop()
	go s.delayLoop()
	go s.timerLoop()
}

// Stop signals all loops to exit and waits for them to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) cronLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.evaluateCronJobs(now)
		}
	}
}

func (s *Scheduler) evaluateCronJobs(now time.Time) {
	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.cronJobs {
		if sj.cron == nil || sj.nextFireAt.After(now) {
			continue
		}
		due = append(due, sj)
		sj.nextFireAt = sj.cron.NextFire(now)
	}
	s.mu.Unlock()

	for _, sj := range due {
		if !s.gate.Satisfied(sj.def.DependsOn) {
			s.logger.WithField("job", sj.def.Name).Debug("dependency gate not satisfied, skipping fire")
			continue
		}
		if !s.TryAdmit(sj.def.Name) {
			s.logger.WithField("job", sj.def.Name).Debug("rate limited, skipping fire")
			continue
		}
		select {
		case s.readyCh <- FireEvent{JobName: sj.def.Name, TargetTask: sj.def.CommandID, FiredAt: now}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) delayLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			for _, item := range s.delay.PopReady(now) {
				select {
				case s.readyCh <- FireEvent{JobName: item.EnvelopeID, FiredAt: now}:
				case <-s.ctx.Done():
					return
				}
			}
		}
	}
}

func (s *Scheduler) timerLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			for _, t := range s.timers.DueTimers(now) {
				select {
				case s.timerCh <- t:
				case <-s.ctx.Done():
					return
				}
			}
		}
	}
}
