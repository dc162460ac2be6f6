package monitor

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Probe is a periodic anomaly detector sampled on its own interval.
type Probe interface {
	Signal() SignalType
	Interval() time.Duration
	Check() (bool, map[string]any)
}

// MemoryProbe flags sustained heap growth. High live-heap usage on a page
// that mostly renders static content is anomalous.
type MemoryProbe struct {
	Threshold      uint64 // Live heap bytes considered pressure
	SampleInterval time.Duration
}

func (p MemoryProbe) Signal() SignalType { return SignalMemoryPressure }

func (p MemoryProbe) Interval() time.Duration {
	if p.SampleInterval <= 0 {
		return 30 * time.Second
	}
	return p.SampleInterval
}

func (p MemoryProbe) Check() (bool, map[string]any) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc <= p.Threshold {
		return false, nil
	}
	return true, map[string]any{
		"heapAllocBytes": stats.HeapAlloc,
		"thresholdBytes": p.Threshold,
	}
}

// DebuggerProbe is a best-effort heuristic for an attached inspector, the
// native counterpart of a devtools-open check. On Linux it reads the
// TracerPid field from /proc/self/status; elsewhere it reports nothing.
type DebuggerProbe struct {
	SampleInterval time.Duration
}

func (p DebuggerProbe) Signal() SignalType { return SignalDebuggerAttached }

func (p DebuggerProbe) Interval() time.Duration {
	if p.SampleInterval <= 0 {
		return time.Second
	}
	return p.SampleInterval
}

func (p DebuggerProbe) Check() (bool, map[string]any) {
	pid := tracerPid()
	if pid <= 0 {
		return false, nil
	}
	return true, map[string]any{"tracerPid": pid}
}

func tracerPid() int {
	status, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(status), "\n") {
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TracerPid:")))
		if err != nil {
			return 0
		}
		return pid
	}
	return 0
}

// FuncProbe adapts a plain function into a Probe, letting embedding
// applications register their own heuristics.
type FuncProbe struct {
	SignalType     SignalType
	SampleInterval time.Duration
	CheckFunc      func() (bool, map[string]any)
}

func (p FuncProbe) Signal() SignalType { return p.SignalType }

func (p FuncProbe) Interval() time.Duration {
	if p.SampleInterval <= 0 {
		return time.Second
	}
	return p.SampleInterval
}

func (p FuncProbe) Check() (bool, map[string]any) {
	if p.CheckFunc == nil {
		return false, nil
	}
	return p.CheckFunc()
}
