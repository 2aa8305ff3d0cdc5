package instance

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Sample is one monitor reading, per §4.4/the per-instance monitor ring
// buffer (§4.1). Sampled every 1s regardless of broadcast, per §5.
type Sample struct {
	MemBytes  uint64    `json:"mem_bytes"`
	DiskIO    uint64    `json:"disk_io"`
	CPUFrac   float64   `json:"cpu_frac"`
	StartTime time.Time `json:"start_time"`
}

// sampleProcess reads {memory_bytes, disk_usage, cpu_fraction, start_time}
// for pid. Deliberately hand-rolled against /proc instead of a gopsutil
// dependency — see DESIGN.md's "Considered and deferred" entry under
// "Dropped / not wired" for why: the only numbers this supervisor needs are
// resident memory and a CPU fraction normalized by core count, both
// readable straight out of /proc/<pid>/stat and /proc/<pid>/statm on
// Linux. Returns the zero Sample when pid is 0 or the platform doesn't
// expose /proc (matching "returns zeros when no process").
func sampleProcess(pid int, startTime time.Time, prevCPUTicks *uint64, prevSampleAt *time.Time) Sample {
	if pid <= 0 {
		return Sample{StartTime: startTime}
	}

	mem := readResidentMemory(pid)
	cpuTicks, ok := readCPUTicks(pid)

	var cpuFrac float64
	now := time.Now()
	if ok && prevCPUTicks != nil && prevSampleAt != nil && !prevSampleAt.IsZero() {
		elapsedTicks := float64(cpuTicks - *prevCPUTicks)
		elapsedSeconds := now.Sub(*prevSampleAt).Seconds()
		if elapsedSeconds > 0 {
			hz := clockTicksPerSecond()
			cpuFrac = (elapsedTicks / hz) / elapsedSeconds / float64(runtime.NumCPU())
		}
	}
	if prevCPUTicks != nil {
		*prevCPUTicks = cpuTicks
	}
	if prevSampleAt != nil {
		*prevSampleAt = now
	}

	return Sample{
		MemBytes:  mem,
		DiskIO:    0, // not exposed without per-process iostat accounting; left at zero
		CPUFrac:   cpuFrac,
		StartTime: startTime,
	}
}

func clockTicksPerSecond() float64 { return 100 } // USER_HZ is 100 on virtually every Linux config

func readResidentMemory(pid int) uint64 {
	f, err := os.Open(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0
	}
	residentPages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return residentPages * uint64(os.Getpagesize())
}

func readCPUTicks(pid int) (uint64, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}
	// Fields after the (comm) parenthetical are space separated; utime is
	// field 14, stime field 15 (1-indexed) per proc(5).
	closeParen := strings.LastIndexByte(string(data), ')')
	if closeParen < 0 {
		return 0, false
	}
	rest := strings.Fields(string(data)[closeParen+1:])
	if len(rest) < 15-2 {
		return 0, false
	}
	utime, err1 := strconv.ParseUint(rest[13-2], 10, 64)
	stime, err2 := strconv.ParseUint(rest[14-2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return utime + stime, true
}

// Monitor samples a process at 1Hz and hands each sample to push, independent of
// whether anyone is subscribed to the event bus, per §5's "monitor task
// samples at a fixed 1 Hz regardless of consumer presence."
type Monitor struct {
	push      func(Sample)
	startTime time.Time

	prevTicks uint64
	prevAt    time.Time
}

// NewMonitor builds a Monitor that pushes each Sample via push.
func NewMonitor(push func(Sample)) *Monitor {
	return &Monitor{push: push}
}

// Run samples pid() once per second until stop is closed. pid is a func so
// the monitor can keep running across restarts, always reading the
// supervisor's current child pid (0 when not running).
func (m *Monitor) Run(stop <-chan struct{}, pid func() int, startTime func() time.Time) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s := sampleProcess(pid(), startTime(), &m.prevTicks, &m.prevAt)
			if m.push != nil {
				m.push(s)
			}
		}
	}
}
