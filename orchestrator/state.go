package orchestrator

import (
	"sync"
	"time"

	"hnenricher/enrichment"
)

// State is the scheduler state machine.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// LogEntry is a single line in the status log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CycleStatus is the outcome of the most recent run of one cycle.
type CycleStatus struct {
	Cycle      Cycle                `json:"cycle"`
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Error      string               `json:"error,omitempty"`
	Code       enrichment.ErrorCode `json:"code,omitempty"`
	Report     any                  `json:"report,omitempty"`
}

// Status is a snapshot returned to the ops API.
type Status struct {
	State   State                 `json:"state"`
	Running Cycle                 `json:"running,omitempty"`
	Last    map[Cycle]CycleStatus `json:"last"`
	Skipped int                   `json:"skipped"`
	Logs    []LogEntry            `json:"logs"`
}

// manager holds the scheduler state with thread-safe access.
type manager struct {
	mu      sync.RWMutex
	state   State
	running Cycle
	last    map[Cycle]CycleStatus
	skipped int
	logs    []LogEntry
	maxLogs int
}

func newManager() *manager {
	return &manager{
		state:   StateIdle,
		last:    make(map[Cycle]CycleStatus),
		maxLogs: 50,
	}
}

func (m *manager) addLog(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLog(message)
}

// appendLog must hold the lock.
func (m *manager) appendLog(message string) {
	m.logs = append(m.logs, LogEntry{Timestamp: time.Now(), Message: message})
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[len(m.logs)-m.maxLogs:]
	}
}

func (m *manager) begin(c Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateRunning
	m.running = c
	m.appendLog("started " + string(c))
}

func (m *manager) finish(st CycleStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.running = ""
	m.last[st.Cycle] = st
	if st.Error != "" {
		m.appendLog("failed " + string(st.Cycle) + ": " + st.Error)
		return
	}
	m.appendLog("finished " + string(st.Cycle))
}

func (m *manager) skip(c Cycle, busyWith Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
	m.appendLog("skipped " + string(c) + ": busy with " + string(busyWith))
}

func (m *manager) current() Cycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *manager) snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := make(map[Cycle]CycleStatus, len(m.last))
	for k, v := range m.last {
		last[k] = v
	}
	return Status{
		State:   m.state,
		Running: m.running,
		Last:    last,
		Skipped: m.skipped,
		Logs:    append([]LogEntry{}, m.logs...),
	}
}
