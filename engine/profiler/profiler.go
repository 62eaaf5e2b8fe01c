// Package profiler logs frame rate, memory and compute dispatch statistics on an interval.
package profiler

import (
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"go.uber.org/zap"
)

// Profiler tracks frame rate, memory and per-kernel dispatch statistics for performance monitoring.
// Outputs stats to the log at a configurable interval. Not safe for concurrent use; the frame
// goroutine owns it.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	activeFrames int
	dispatches   map[string]int
	records      int
	rejected     int
	reconciled   int
	stepTime     time.Duration

	logger *zap.Logger
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		dispatches:     make(map[string]int),
		logger:         zap.NewNop(),
	}

	for _, option := range options {
		option(p)
	}
	return p
}

// Observe folds one simulation step into the current interval.
//
// Parameters:
//   - r: the step's report
func (p *Profiler) Observe(r compute.Report) {
	if r.Active {
		p.activeFrames++
	}
	for _, k := range r.Dispatches {
		p.dispatches[string(k)]++
	}
	p.records += r.PhysicsRecords + r.DecorationRecords
	p.rejected += r.PhysicsRejected + r.DecorationRejected
	p.reconciled += r.Reconciled.Applied
	p.stepTime += r.Took
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory, and the
// compute work observed since the last log.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	var avgStep time.Duration
	if p.frameCount > 0 {
		avgStep = p.stepTime / time.Duration(p.frameCount)
	}

	p.logger.Info("profile",
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc", gcCount),
		zap.Uint64("gc_last_us", lastPauseUs),
		zap.Uint64("gc_max_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
		zap.Int("active_frames", p.activeFrames),
		zap.Strings("dispatches", p.dispatchSummary()),
		zap.Int("records", p.records),
		zap.Int("rejected", p.rejected),
		zap.Int("reconciled", p.reconciled),
		zap.Duration("avg_step", avgStep),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.activeFrames = 0
	p.records = 0
	p.rejected = 0
	p.reconciled = 0
	p.stepTime = 0
	clear(p.dispatches)
	return true
}

// dispatchSummary renders the interval's dispatch counts as sorted "kernel=count" pairs.
func (p *Profiler) dispatchSummary() []string {
	out := make([]string, 0, len(p.dispatches))
	for k, n := range p.dispatches {
		out = append(out, k+"="+strconv.Itoa(n))
	}
	sort.Strings(out)
	return out
}
