package daemon

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/strata/errors"
)

// SystemMetrics tracks memory usage for the daemon status line
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// getMemoryStats returns total and available system memory in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// GetSystemMetrics returns current memory usage. Failures degrade to
// zero values so the status line never blocks a cycle.
func GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var metrics SystemMetrics
	if err == nil && total > 0 {
		metrics.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		metrics.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		metrics.MemoryPercent = (metrics.MemoryUsedGB / metrics.MemoryTotalGB) * 100
	}
	return metrics
}
