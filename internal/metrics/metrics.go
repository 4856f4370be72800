package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is an in-process metrics collector shared by the worker tasks
// and exposed over the operator API. Counters and gauges are updated
// atomically; names are created on first use.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	errorRates   map[string]*errorRate
	healthChecks map[string]*int64
	startTime    time.Time
}

type errorRate struct {
	total  int64
	errors int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		errorRates:   make(map[string]*errorRate),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(m.counter(name), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.gauge(name), value)
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	rate := m.rate(name)
	atomic.AddInt64(&rate.total, 1)
}

// RecordError records a failed operation for error rate tracking
func (m *Metrics) RecordError(name string) {
	rate := m.rate(name)
	atomic.AddInt64(&rate.total, 1)
	atomic.AddInt64(&rate.errors, 1)
}

// SetHealthCheck records a named health status
func (m *Metrics) SetHealthCheck(name string, healthy bool) {
	var v int64
	if healthy {
		v = 1
	}
	m.mu.Lock()
	check, exists := m.healthChecks[name]
	if !exists {
		check = new(int64)
		m.healthChecks[name] = check
	}
	m.mu.Unlock()
	atomic.StoreInt64(check, v)
}

// GetHealthChecks returns all recorded health statuses
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]bool, len(m.healthChecks))
	for name, check := range m.healthChecks {
		result[name] = atomic.LoadInt64(check) == 1
	}
	return result
}

// Snapshot is the JSON shape returned by the metrics endpoint
type Snapshot struct {
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Counters      map[string]int64        `json:"counters"`
	Gauges        map[string]int64        `json:"gauges"`
	ErrorRates    map[string]ErrorRateOut `json:"error_rates"`
	Health        map[string]bool         `json:"health"`
}

// ErrorRateOut reports totals and the derived error percentage
type ErrorRateOut struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// GetAllMetrics returns a point-in-time snapshot of every metric
func (m *Metrics) GetAllMetrics() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Counters:      make(map[string]int64, len(m.counters)),
		Gauges:        make(map[string]int64, len(m.gauges)),
		ErrorRates:    make(map[string]ErrorRateOut, len(m.errorRates)),
		Health:        make(map[string]bool, len(m.healthChecks)),
	}
	for name, counter := range m.counters {
		snap.Counters[name] = atomic.LoadInt64(counter)
	}
	for name, gauge := range m.gauges {
		snap.Gauges[name] = atomic.LoadInt64(gauge)
	}
	for name, rate := range m.errorRates {
		total := atomic.LoadInt64(&rate.total)
		errCount := atomic.LoadInt64(&rate.errors)
		out := ErrorRateOut{Total: total, Errors: errCount}
		if total > 0 {
			out.ErrorRate = float64(errCount) / float64(total)
		}
		snap.ErrorRates[name] = out
	}
	for name, check := range m.healthChecks {
		snap.Health[name] = atomic.LoadInt64(check) == 1
	}
	return snap
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Check again to avoid race conditions
	if counter, exists = m.counters[name]; !exists {
		counter = new(int64)
		m.counters[name] = counter
	}
	return counter
}

func (m *Metrics) gauge(name string) *int64 {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()
	if exists {
		return gauge
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gauge, exists = m.gauges[name]; !exists {
		gauge = new(int64)
		m.gauges[name] = gauge
	}
	return gauge
}

func (m *Metrics) rate(name string) *errorRate {
	m.mu.RLock()
	rate, exists := m.errorRates[name]
	m.mu.RUnlock()
	if exists {
		return rate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rate, exists = m.errorRates[name]; !exists {
		rate = &errorRate{}
		m.errorRates[name] = rate
	}
	return rate
}
