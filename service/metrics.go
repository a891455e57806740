package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks timing for the sealing and tally phases.
type MetricsCollector struct {
	mu sync.RWMutex

	sealCount     int
	sealTotalTime time.Duration

	tallyStartTime      time.Time
	tallyEndTime        time.Time
	tallyProcessingTime time.Duration
}

// OperationMetrics contains timing information for an operation.
type OperationMetrics struct {
	Count            int   `json:"count"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// MetricsResponse provides the metrics for all operations.
type MetricsResponse struct {
	Sealing OperationMetrics `json:"sealing"`
	Tally   OperationMetrics `json:"tally"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordSeal records one completed seal operation.
func (mc *MetricsCollector) RecordSeal(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sealCount++
	mc.sealTotalTime += duration
}

// RecordTallyStart marks the start of a tally run.
func (mc *MetricsCollector) RecordTallyStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.tallyStartTime = time.Now()
}

// RecordTallyEnd marks the end of a tally run.
func (mc *MetricsCollector) RecordTallyEnd() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.tallyEndTime = time.Now()
	mc.tallyProcessingTime = mc.tallyEndTime.Sub(mc.tallyStartTime)
}

// GetMetrics returns current metrics for all operations.
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Sealing: OperationMetrics{
			Count:            mc.sealCount,
			ProcessingTimeMs: mc.sealTotalTime.Milliseconds(),
		},
		Tally: OperationMetrics{
			ProcessingTimeMs: mc.tallyProcessingTime.Milliseconds(),
		},
	}
}
