package crawler

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ThrottleLevel indicates memory pressure severity.
type ThrottleLevel int

const (
	// ThrottleNormal indicates memory usage is within normal bounds.
	ThrottleNormal ThrottleLevel = iota
	// ThrottleWarning indicates memory usage is elevated (75-90% of limit).
	ThrottleWarning
	// ThrottleCritical indicates memory usage is critical (>90% of limit).
	ThrottleCritical
)

func (l ThrottleLevel) String() string {
	switch l {
	case ThrottleWarning:
		return "warning"
	case ThrottleCritical:
		return "critical"
	default:
		return "normal"
	}
}

// memoryCheckInterval bounds how often AdmissionLimit reads heap statistics.
const memoryCheckInterval = 250 * time.Millisecond

// MemoryWatcher measures heap usage against a limit and turns memory
// pressure into a reduced admission ceiling for the fetch scheduler.
type MemoryWatcher struct {
	mu         sync.Mutex
	limitBytes int64
	callback   func(level ThrottleLevel)
	lastLevel  ThrottleLevel
	lastCheck  time.Time
}

// NewMemoryWatcher creates a memory watcher with the specified limit in MB.
// It only measures; ApplySoftLimit hands the limit to the Go runtime.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	return &MemoryWatcher{
		limitBytes: limitMB * 1024 * 1024,
		lastLevel:  ThrottleNormal,
	}
}

// ApplySoftLimit sets the runtime soft memory limit to the watcher's limit
// and returns the previous one. The limit is process-wide.
func (m *MemoryWatcher) ApplySoftLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return debug.SetMemoryLimit(m.limitBytes)
}

// Check returns current memory usage percentage and throttle level.
// The throttle callback fires when the level changes.
func (m *MemoryWatcher) Check() (usedPercent float64, level ThrottleLevel) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	limitBytes := float64(m.limitBytes)
	m.lastCheck = time.Now()
	if limitBytes <= 0 {
		m.mu.Unlock()
		return 0, ThrottleNormal
	}

	// HeapAlloc is memory in use, not memory reserved
	usedPercent = float64(memStats.HeapAlloc) / limitBytes * 100

	switch {
	case usedPercent >= 90:
		level = ThrottleCritical
	case usedPercent >= 75:
		level = ThrottleWarning
	default:
		level = ThrottleNormal
	}

	changed := level != m.lastLevel
	m.lastLevel = level
	callback := m.callback
	m.mu.Unlock()

	if changed && callback != nil {
		callback(level)
	}
	return usedPercent, level
}

// AdmissionLimit returns how many fetches may be in flight under the
// current memory pressure: concurrency when normal, half of it at warning
// and one at critical. Heap statistics are sampled at most every
// memoryCheckInterval; in between the last level is reused.
func (m *MemoryWatcher) AdmissionLimit(concurrency int) int {
	m.mu.Lock()
	stale := time.Since(m.lastCheck) >= memoryCheckInterval
	level := m.lastLevel
	m.mu.Unlock()

	if stale {
		_, level = m.Check()
	}

	switch level {
	case ThrottleCritical:
		return 1
	case ThrottleWarning:
		return max(concurrency/2, 1)
	default:
		return concurrency
	}
}

// SetThrottleCallback registers a callback to be invoked when throttle level changes.
func (m *MemoryWatcher) SetThrottleCallback(cb func(level ThrottleLevel)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}
