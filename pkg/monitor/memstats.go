package monitor

import "runtime"

// MemSnapshot is a point-in-time view of process memory.
type MemSnapshot struct {
	AllocMB    float64
	SysMB      float64
	NumGC      uint32
	Goroutines int
}

// ReadMemStats captures current process memory usage.
func ReadMemStats() MemSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemSnapshot{
		AllocMB:    float64(ms.Alloc) / (1024 * 1024),
		SysMB:      float64(ms.Sys) / (1024 * 1024),
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
