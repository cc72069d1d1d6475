package telemetry

import (
	"time"

	"github.com/yz174/kliq/pkg/logger"
)

// slowThreshold is the duration above which finished traces are logged.
var slowThreshold = 500 * time.Millisecond

// SetSlowThreshold adjusts the slow-trace log threshold. Zero disables it.
func SetSlowThreshold(d time.Duration) { slowThreshold = d }

type Step struct {
	Name     string
	Duration time.Duration
}

// Trace times an operation and its labelled steps.
type Trace struct {
	Name     string
	Start    time.Time
	Steps    []Step
	lastMark time.Time
	done     bool
}

// Track starts a new trace.
func Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now}
}

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark)})
	tr.lastMark = now
}

// Finish observes the total duration. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr.done {
		return
	}
	tr.done = true
	total := time.Since(tr.Start)
	OperationDuration.WithLabelValues(tr.Name).Observe(total.Seconds())
	if slowThreshold > 0 && total > slowThreshold {
		steps := make([]any, 0, len(tr.Steps)*2+4)
		steps = append(steps, "op", tr.Name, "total_ms", total.Milliseconds())
		for _, s := range tr.Steps {
			steps = append(steps, s.Name+"_ms", s.Duration.Milliseconds())
		}
		logger.Warn("slow_operation", steps...)
	}
}
