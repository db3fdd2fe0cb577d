package engine

import (
	"context"
	"sync"
)

type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageProcessing Stage = "processing"
	StageEncoding   Stage = "encoding"
	StagePackaging  Stage = "packaging"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Progress is one event of an export. Percent never decreases within an
// export and ends at 100 on success.
type Progress struct {
	ExportID string
	Stage    Stage
	Percent  int
	Message  string
	Detail   string
}

// reporter enforces event ordering for one export: percentages strictly
// increase, nothing follows a terminal event, and once ctx is done only
// the error event gets through.
type reporter struct {
	mu       sync.Mutex
	ctx      context.Context
	id       string
	emit     func(Progress)
	last     int
	started  bool
	finished bool
}

func newReporter(ctx context.Context, id string, emit func(Progress)) *reporter {
	return &reporter{ctx: ctx, id: id, emit: emit}
}

func (r *reporter) report(stage Stage, percent int, message, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.ctx.Err() != nil {
		return
	}
	if r.started && percent <= r.last {
		return
	}
	r.started = true
	r.last = percent
	if stage == StageComplete {
		r.finished = true
	}
	r.emit(Progress{ExportID: r.id, Stage: stage, Percent: percent, Message: message, Detail: detail})
}

// fail emits the terminal error event at the last reported percentage.
func (r *reporter) fail(message, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.emit(Progress{ExportID: r.id, Stage: StageError, Percent: r.last, Message: message, Detail: detail})
}

func (r *reporter) percent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
