package workerpool

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/reason"
)

// Strategy selects among candidate workers once the queue, capability, and
// resource filters have narrowed the field (spec §4.4 Placement).
type Strategy string

const (
	StrategyLeastLoaded Strategy = "least-loaded"
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyRandom      Strategy = "random"
	StrategyWeighted    Strategy = "weighted"
)

// Config configures the Pool's placement behavior and heartbeat tolerance.
type Config struct {
	Strategy            Strategy
	HeartbeatInterval   time.Duration
	MissedHeartbeatsMax int // consecutive missed intervals before offline
	Logger              *logrus.Entry
}

// DefaultConfig returns sensible placement and liveness defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:            StrategyLeastLoaded,
		HeartbeatInterval:   10 * time.Second,
		MissedHeartbeatsMax: 3,
	}
}

// Pool is the Worker Pool Manager: a capability-and-resource-aware
// placement registry over a set of workers, grounded on
// registry.Registry's FindByCapability lookup pattern generalized to also
// filter by queue subscription and resource fit.
type Pool struct {
	cfg    Config
	logger *logrus.Entry

	mu          sync.RWMutex
	workers     map[string]*Worker
	roundRobinN int
}

// New creates an empty worker pool.
func New(cfg Config) *Pool {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLeastLoaded
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.MissedHeartbeatsMax <= 0 {
		cfg.MissedHeartbeatsMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		cfg:     cfg,
		logger:  cfg.Logger.WithField("component", "workerpool"),
		workers: make(map[string]*Worker),
	}
}

// Register adds or replaces a worker record.
func (p *Pool) Register(id string, queues, capabilities []string, resources envelope.ResourceAsk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[id] = newWorker(id, queues, capabilities, resources)
	p.logger.WithFields(logrus.Fields{"worker": id, "queues": queues, "capabilities": capabilities}).Info("worker registered")
}

// Deregister removes a worker entirely (distinct from Drain, which keeps
// the record but stops new placements).
func (p *Pool) Deregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, id)
}

// Drain marks a worker as draining: it keeps existing leases but is no
// longer eligible for new placements.
func (p *Pool) Drain(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.workers[id]; ok {
		w.State = StateDraining
	}
}

// Heartbeat records that a worker is alive.
func (p *Pool) Heartbeat(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.workers[id]; ok {
		w.LastHeartbeat = time.Now()
		if w.State == StateOffline {
			w.State = StateOnline
			p.logger.WithField("worker", id).Info("worker came back online")
		}
	}
}

// Get returns a snapshot copy of a worker record.
func (p *Pool) Get(id string) (Worker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.workers[id]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}

// Place selects a worker for an envelope requiring queueName subscription,
// requiredCapabilities, and a resourceAsk, reserving the resources
// atomically on success. Returns reason.PlacementUnavailable when no
// worker currently qualifies (spec §4.4 edge case: transient, not
// terminal — caller should retry placement later).
func (p *Pool) Place(queueName string, requiredCapabilities []string, ask envelope.ResourceAsk) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []*Worker
	for _, w := range p.workers {
		if w.State != StateOnline {
			continue
		}
		if !w.subscribesTo(queueName) {
			continue
		}
		if !w.hasCapabilities(requiredCapabilities) {
			continue
		}
		if !w.fitsResources(ask) {
			continue
		}
		candidates = append(candidates, w)
	}

	if len(candidates) == 0 {
		return "", reason.New(reason.PlacementUnavailable, fmt.Sprintf("no worker available for queue %q with capabilities %v", queueName, requiredCapabilities))
	}

	chosen := p.selectCandidate(candidates)
	chosen.reserve(ask)
	return chosen.ID, nil
}

// selectCandidate applies the pool's configured strategy over a
// pre-filtered candidate set. Caller holds p.mu.
func (p *Pool) selectCandidate(candidates []*Worker) *Worker {
	switch p.cfg.Strategy {
	case StrategyRandom:
		return candidates[rand.Intn(len(candidates))]
	case StrategyRoundRobin:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		chosen := candidates[p.roundRobinN%len(candidates)]
		p.roundRobinN++
		return chosen
	case StrategyWeighted:
		return weightedPick(candidates)
	case StrategyLeastLoaded:
		fallthrough
	default:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.loadFraction() < best.loadFraction() {
				best = c
			}
		}
		return best
	}
}

// weightedPick favors workers with more total capacity, proportionally.
func weightedPick(candidates []*Worker) *Worker {
	var totalWeight float64
	for _, c := range candidates {
		totalWeight += float64(c.TotalResources.Slots) + 1
	}
	r := rand.Float64() * totalWeight
	for _, c := range candidates {
		w := float64(c.TotalResources.Slots) + 1
		if r < w {
			return c
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}

// Lease records that envelopeID is now running on workerID.
func (p *Pool) Lease(workerID, envelopeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.workers[workerID]; ok {
		w.ActiveLeases[envelopeID] = struct{}{}
	}
}

// Release frees the reserved resources and drops the lease once an
// envelope finishes running on a worker, regardless of outcome.
func (p *Pool) Release(workerID, envelopeID string, ask envelope.ResourceAsk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[workerID]
	if !ok {
		return
	}
	delete(w.ActiveLeases, envelopeID)
	w.release(ask)
}

// ReclaimExpired scans workers whose last heartbeat exceeds the missed
// threshold, transitions them offline, and returns their in-flight
// envelope IDs so the Execution Runtime can requeue or dead-letter them
// (spec §4.4: "a worker whose lease is not renewed within the heartbeat
// timeout is treated as lost; its leases are reclaimed").
func (p *Pool) ReclaimExpired(now time.Time) map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := time.Duration(p.cfg.MissedHeartbeatsMax) * p.cfg.HeartbeatInterval
	reclaimed := make(map[string][]string)
	for id, w := range p.workers {
		if w.State == StateOffline {
			continue
		}
		if now.Sub(w.LastHeartbeat) <= threshold {
			continue
		}
		w.State = StateOffline
		var leases []string
		for envID := range w.ActiveLeases {
			leases = append(leases, envID)
		}
		if len(leases) > 0 {
			reclaimed[id] = leases
		}
		w.ActiveLeases = make(map[string]struct{})
		w.AvailableResources = w.TotalResources
		p.logger.WithFields(logrus.Fields{"worker": id, "reclaimed_leases": len(leases)}).Warn("worker lost, leases reclaimed")
	}
	return reclaimed
}

// List returns a snapshot copy of every registered worker.
func (p *Pool) List() []Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, *w)
	}
	return out
}
