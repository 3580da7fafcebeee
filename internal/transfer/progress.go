package transfer

import (
	"time"
)

// Stage identifies which half of a transfer a progress event belongs to.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageUploading   Stage = "uploading"
)

// Progress reporting cadence: an event when the percentage crosses a 5%
// step, or when reportInterval has passed since the last event.
const (
	reportStep     = 5
	reportInterval = 2 * time.Second
)

// ProgressEvent describes the state of one stage of one file. Percent never
// decreases within a stage. Final marks the last event of a stage.
type ProgressEvent struct {
	Stage    Stage
	FileName string
	Percent  int
	Done     int64
	Total    int64
	Final    bool
}

// ProgressSink receives progress events. Implementations must not block for
// long; they run on the transfer goroutine.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ev ProgressEvent)

// Progress calls f(ev).
func (f ProgressFunc) Progress(ev ProgressEvent) {
	f(ev)
}

// discardSink drops every event.
type discardSink struct{}

func (discardSink) Progress(ProgressEvent) {}

// throttle turns a stream of byte counts into rate-limited progress events.
type throttle struct {
	stage   Stage
	name    string
	total   int64
	sink    ProgressSink
	nowFunc func() time.Time

	lastPct int
	lastAt  time.Time
}

func newThrottle(stage Stage, name string, total int64, sink ProgressSink, nowFunc func() time.Time) *throttle {
	if sink == nil {
		sink = discardSink{}
	}

	return &throttle{
		stage:   stage,
		name:    name,
		total:   total,
		sink:    sink,
		nowFunc: nowFunc,
		lastPct: -1,
		lastAt:  nowFunc(),
	}
}

// start emits the 0% event.
func (t *throttle) start() {
	t.emit(0, 0, false)
}

// update offers a cumulative byte count. 100% is reserved for finish.
func (t *throttle) update(done int64) {
	if t.total <= 0 {
		return
	}

	pct := min(int(done*100/t.total), 99)
	if pct <= t.lastPct {
		return
	}

	crossedStep := t.lastPct < 0 || pct/reportStep > t.lastPct/reportStep
	if !crossedStep && t.nowFunc().Sub(t.lastAt) < reportInterval {
		return
	}

	t.emit(pct, done, false)
}

// finish emits the terminal 100% event.
func (t *throttle) finish(done int64) {
	t.emit(100, done, true)
}

func (t *throttle) emit(pct int, done int64, final bool) {
	t.lastPct = pct
	t.lastAt = t.nowFunc()

	t.sink.Progress(ProgressEvent{
		Stage:    t.stage,
		FileName: t.name,
		Percent:  pct,
		Done:     done,
		Total:    t.total,
		Final:    final,
	})
}
