package importer

import "math"

// Phase is the coarse state of the import workflow.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Messages shown while a run progresses.
const (
	MessageStarting  = "Starting upload..."
	MessageSucceeded = "Upload completed successfully!"
)

// Progress is the status observed by the progress UI.
//
// Percent never decreases within a run and is 100 only once Phase is
// PhaseSucceeded. Seq increases with every published value so stream
// readers can tell updates apart.
type Progress struct {
	RunID    string `json:"runId,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Phase    Phase  `json:"phase"`
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Seq      uint64 `json:"seq"`
}

// Idle is the state before any run and after Reset.
func Idle() Progress {
	return Progress{Phase: PhaseIdle}
}

// Finished reports whether the run reached a terminal phase.
func (p Progress) Finished() bool {
	return p.Phase == PhaseSucceeded || p.Phase == PhaseFailed
}

// Event is a progress transition. See Reduce.
type Event interface {
	event()
}

// Started begins a run of total store calls.
type Started struct {
	RunID    string
	Strategy string
	Total    int
}

// Stepped records that done of Total calls have completed.
type Stepped struct {
	Done    int
	Total   int
	Message string
}

// Succeeded ends the run successfully.
type Succeeded struct{}

// Failed ends the run with Err.
type Failed struct {
	Err error
}

// Reset returns to idle.
type Reset struct{}

func (Started) event()   {}
func (Stepped) event()   {}
func (Succeeded) event() {}
func (Failed) event()    {}
func (Reset) event()     {}

// Reduce applies e to p and returns the next state. It is pure; Seq is
// maintained by the Channel, not here.
func Reduce(p Progress, e Event) Progress {
	switch e := e.(type) {
	case Started:
		return Progress{
			RunID:    e.RunID,
			Strategy: e.Strategy,
			Phase:    PhaseRunning,
			Message:  MessageStarting,
			Total:    e.Total,
			Seq:      p.Seq,
		}

	case Stepped:
		next := p
		next.Phase = PhaseRunning
		next.Done = e.Done
		next.Total = e.Total
		next.Message = e.Message
		next.Percent = max(p.Percent, percent(e.Done, e.Total))
		return next

	case Succeeded:
		next := p
		next.Phase = PhaseSucceeded
		next.Percent = 100
		next.Message = MessageSucceeded
		return next

	case Failed:
		next := p
		next.Phase = PhaseFailed
		if e.Err != nil {
			next.Message = e.Err.Error()
		}
		return next

	case Reset:
		next := Idle()
		next.Seq = p.Seq
		return next
	}
	return p
}

// percent is round(100*done/total), held at 99 until the run succeeds.
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(done) * 100 / float64(total)))
	return min(max(pct, 0), 99)
}
