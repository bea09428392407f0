package source

import (
	"context"
	"sync"
)

// Memory is an in-process Source. It backs tests and the debug tooling that
// simulates a device feed.
type Memory struct {
	mu      sync.Mutex
	auth    Authorization
	authErr error
	values  map[string]map[string]float64
	errs    map[string]error
	calls   int
}

func NewMemory(auth Authorization) *Memory {
	return &Memory{
		auth:   auth,
		values: make(map[string]map[string]float64),
		errs:   make(map[string]error),
	}
}

func (m *Memory) SetAuthorization(auth Authorization, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth, m.authErr = auth, err
}

func (m *Memory) Set(metric, day string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[metric] == nil {
		m.values[metric] = make(map[string]float64)
	}
	m.values[metric][day] = v
}

// Fail makes every lookup for metric return err. A nil err clears it.
func (m *Memory) Fail(metric string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, metric)
		return
	}
	m.errs[metric] = err
}

// Calls returns how many aggregate lookups were made.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) AuthorizationStatus(ctx context.Context) (Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth, m.authErr
}

func (m *Memory) DailyAggregate(ctx context.Context, metric, day string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := m.errs[metric]; err != nil {
		return 0, &MetricError{Metric: metric, Day: day, Err: err}
	}
	return m.values[metric][day], nil
}
