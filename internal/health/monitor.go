package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/resilience"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// QueueLengther reports the pending depth of one queue.
type QueueLengther interface {
	Name() string
	Len(ctx context.Context) (int64, error)
}

// Report contains the full relay health report.
type Report struct {
	SystemStatus      SystemStatus                   `json:"system_status"`
	Dependencies      []DependencyHealth             `json:"dependencies"`
	Actions           map[string]resilience.Snapshot `json:"actions"`
	Queues            map[string]int64               `json:"queues,omitempty"`
	RegisteredActions []string                       `json:"registered_actions"`
}

// Monitor aggregates health status from the relay's dependencies and the
// resilience state.
type Monitor struct {
	mu         sync.Mutex
	checks     map[string]Check
	policies   *resilience.Registry
	actions    func() []string
	queues     []QueueLengther
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a monitor over the resilience registry. actions lists
// the registered action keys for the report.
func NewMonitor(policies *resilience.Registry, actions func() []string) *Monitor {
	return &Monitor{
		checks:   make(map[string]Check),
		policies: policies,
		actions:  actions,
	}
}

// AddCheck registers a named dependency probe.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// AddQueue registers a queue for depth reporting.
func (m *Monitor) AddQueue(q QueueLengther) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = append(m.queues, q)
}

// CheckHealth assembles the current report. Checks are rate limited so the
// endpoints cannot hammer the dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{SystemStatus: StatusHealthy}

	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := DependencyHealth{Name: name, Status: StatusHealthy}
		if err := m.checks[name](ctx); err != nil {
			dep.Status = StatusCritical
			dep.Error = err.Error()
			report.SystemStatus = StatusCritical
		}
		report.Dependencies = append(report.Dependencies, dep)
	}

	if m.policies != nil {
		report.Actions = m.policies.SnapshotAll()
		// An open breaker degrades the relay but does not make it critical;
		// other actions keep working.
		if report.SystemStatus == StatusHealthy {
			for _, snap := range report.Actions {
				if snap.Breaker.State != resilience.StateClosed {
					report.SystemStatus = StatusDegraded
					break
				}
			}
		}
	}

	if m.actions != nil {
		report.RegisteredActions = m.actions()
	}

	if len(m.queues) > 0 {
		report.Queues = make(map[string]int64, len(m.queues))
		for _, q := range m.queues {
			n, err := q.Len(ctx)
			if err != nil {
				continue
			}
			report.Queues[q.Name()] = n
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
