package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Call lifecycle metrics
	CallsRequestedTotal int64
	CallsStartedTotal   int64
	CallsEndedTotal     int64
	callFailures        map[string]int64 // failure reason -> count
	StaleEventsTotal    int64            // discarded events of superseded attempts

	// WebSocket metrics
	WSConnectionsTotal    int64
	WSDisconnectionsTotal int64
	activeConnections     int64

	// Config resolution metrics
	ConfigLookupsTotal int64
	ConfigErrorsTotal  int64

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			callFailures: make(map[string]int64),
			startTime:    time.Now(),
		}
	})
	return instance
}

// RecordCallRequested increments the call request counter
func (m *Metrics) RecordCallRequested() {
	m.mu.Lock()
	m.CallsRequestedTotal++
	m.mu.Unlock()
}

// RecordCallStarted increments the started-call counter
func (m *Metrics) RecordCallStarted() {
	m.mu.Lock()
	m.CallsStartedTotal++
	m.mu.Unlock()
}

// RecordCallEnded increments the ended-call counter
func (m *Metrics) RecordCallEnded() {
	m.mu.Lock()
	m.CallsEndedTotal++
	m.mu.Unlock()
}

// RecordCallFailed increments the failure counter for a reason
func (m *Metrics) RecordCallFailed(reason string) {
	m.mu.Lock()
	m.callFailures[reason]++
	m.mu.Unlock()
}

// RecordStaleEventDiscarded counts an event discarded because its attempt was superseded
func (m *Metrics) RecordStaleEventDiscarded() {
	m.mu.Lock()
	m.StaleEventsTotal++
	m.mu.Unlock()
}

// RecordWSConnection counts a new UI trigger connection
func (m *Metrics) RecordWSConnection() {
	m.mu.Lock()
	m.WSConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWSDisconnection counts a UI trigger disconnecting
func (m *Metrics) RecordWSDisconnection() {
	m.mu.Lock()
	m.WSDisconnectionsTotal++
	if m.activeConnections > 0 {
		m.activeConnections--
	}
	m.mu.Unlock()
}

// RecordConfigLookup counts an agent config lookup
func (m *Metrics) RecordConfigLookup(ok bool) {
	m.mu.Lock()
	m.ConfigLookupsTotal++
	if !ok {
		m.ConfigErrorsTotal++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of all metrics for reporting
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := make(map[string]int64, len(m.callFailures))
	for reason, count := range m.callFailures {
		failures[reason] = count
	}

	return map[string]interface{}{
		"calls_requested_total":   m.CallsRequestedTotal,
		"calls_started_total":     m.CallsStartedTotal,
		"calls_ended_total":       m.CallsEndedTotal,
		"call_failures":           failures,
		"stale_events_total":      m.StaleEventsTotal,
		"ws_connections_total":    m.WSConnectionsTotal,
		"ws_disconnections_total": m.WSDisconnectionsTotal,
		"ws_active_connections":   m.activeConnections,
		"config_lookups_total":    m.ConfigLookupsTotal,
		"config_errors_total":     m.ConfigErrorsTotal,
		"uptime_seconds":          time.Since(m.startTime).Seconds(),
	}
}

// Handler serves the metrics snapshot as JSON
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Get().Snapshot())
}
