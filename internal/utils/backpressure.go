package utils

import (
	"sync/atomic"
	"time"
)

// QueueMetrics counts what happened to messages that could not be queued
type QueueMetrics struct {
	overflows int64
	timeouts  int64
	dropped   int64
}

// QueueStats is a point-in-time copy of QueueMetrics
type QueueStats struct {
	Overflows int64 `json:"overflows"`
	Timeouts  int64 `json:"timeouts"`
	Dropped   int64 `json:"dropped"`

	// Utilization is the queue fill level in percent, set by the queue owner
	Utilization float64 `json:"utilization"`
}

func (m *QueueMetrics) IncOverflows() { atomic.AddInt64(&m.overflows, 1) }
func (m *QueueMetrics) IncTimeouts()  { atomic.AddInt64(&m.timeouts, 1) }
func (m *QueueMetrics) IncDropped()   { atomic.AddInt64(&m.dropped, 1) }

// Stats returns current counters
func (m *QueueMetrics) Stats() QueueStats {
	return QueueStats{
		Overflows: atomic.LoadInt64(&m.overflows),
		Timeouts:  atomic.LoadInt64(&m.timeouts),
		Dropped:   atomic.LoadInt64(&m.dropped),
	}
}

// SendWithTimeout queues data, waiting up to timeout when ch is full
func SendWithTimeout[T any](ch chan<- T, data T, timeout time.Duration, metrics *QueueMetrics) bool {
	select {
	case ch <- data:
		return true
	default:
	}

	if metrics != nil {
		metrics.IncOverflows()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- data:
		return true
	case <-timer.C:
		if metrics != nil {
			metrics.IncTimeouts()
		}
		return false
	}
}

// TrySend queues data without blocking
func TrySend[T any](ch chan<- T, data T, metrics *QueueMetrics) bool {
	select {
	case ch <- data:
		return true
	default:
		if metrics != nil {
			metrics.IncDropped()
		}
		return false
	}
}

// Utilization returns used/capacity as a percentage
func Utilization(used, capacity int) float64 {
	if capacity <= 0 {
		return 0.0
	}
	return float64(used) / float64(capacity) * 100.0
}
