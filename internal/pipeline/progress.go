package pipeline

// Progress checkpoints. Values only move forward within a run; a stage that
// degrades still advances to its checkpoint so observers see steady motion.
const (
	ProgressStart     = 0
	ProgressAnalyzed  = 5
	ProgressPruned    = 15
	ProgressWelded    = 25
	ProgressGeometry  = 45
	ProgressTextures  = 65
	ProgressAnimation = 75
	ProgressPacked    = 85
	ProgressPublished = 95
	ProgressDone      = 100
)

// Progress reports a checkpoint to the caller.
type Progress struct {
	Percent int
	Stage   string
	Message string
}

// ProgressFunc receives progress updates. Callbacks run on the orchestrator
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// reporter clamps progress so it never moves backwards and never reaches
// 100 except through Done.
type reporter struct {
	fn   ProgressFunc
	last int
}

func newReporter(fn ProgressFunc) *reporter {
	return &reporter{fn: fn, last: -1}
}

func (r *reporter) Report(percent int, stage, message string) {
	if r.fn == nil {
		return
	}
	if percent <= r.last {
		return
	}
	if percent >= ProgressDone {
		percent = ProgressPublished
	}
	r.last = percent
	r.fn(Progress{Percent: percent, Stage: stage, Message: message})
}

// Done marks the run complete. It is the only way progress reaches 100.
func (r *reporter) Done() {
	if r.fn == nil {
		return
	}
	r.last = ProgressDone
	r.fn(Progress{Percent: ProgressDone, Stage: "done", Message: "optimization complete"})
}
