package engine

// Status is the lifecycle state of one engine within a session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// String returns the lowercase wire/name form of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus maps the wire form back to a Status. Unknown input maps to
// StatusIdle so stored sessions from newer versions degrade harmlessly.
func ParseStatus(s string) Status {
	switch s {
	case "loading":
		return StatusLoading
	case "success":
		return StatusSuccess
	case "error":
		return StatusError
	default:
		return StatusIdle
	}
}

// TokenUsage counts tokens consumed by one call (or one session, summed).
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Source is one grounding citation attached to a result.
type Source struct {
	URI   string
	Title string
}

// Run is the mutable per-session state of one engine. Exactly one of
// ResultText/ErrorMessage is set once the run leaves Idle/Loading.
type Run struct {
	EngineID     string
	Status       Status
	ResultText   string
	ErrorMessage string
	TokenUsage   TokenUsage
	Sources      []Source
}

// NewRun returns an Idle run for the given engine.
func NewRun(engineID string) *Run {
	return &Run{EngineID: engineID, Status: StatusIdle}
}

// Begin starts a new invocation cycle on this slot, clearing any prior
// terminal state (update and retry re-enter through here).
func (r *Run) Begin() {
	r.Status = StatusLoading
	r.ResultText = ""
	r.ErrorMessage = ""
	r.TokenUsage = TokenUsage{}
	r.Sources = nil
}

// Succeed moves the run to Success with its result.
func (r *Run) Succeed(text string, usage TokenUsage, sources []Source) {
	r.Status = StatusSuccess
	r.ResultText = text
	r.ErrorMessage = ""
	r.TokenUsage = usage
	r.Sources = sources
}

// Fail moves the run to Error with a message.
func (r *Run) Fail(message string) {
	r.Status = StatusError
	r.ErrorMessage = message
	r.ResultText = ""
}

// Terminal reports whether the run reached Success or Error.
func (r *Run) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusError
}

// Clone returns an independent copy (sources included).
func (r *Run) Clone() *Run {
	c := *r
	if r.Sources != nil {
		c.Sources = make([]Source, len(r.Sources))
		copy(c.Sources, r.Sources)
	}
	return &c
}

// NewRunSet creates the complete Idle run map for a fresh session, one slot
// per catalog engine.
func NewRunSet() map[string]*Run {
	runs := make(map[string]*Run, len(catalog))
	for _, e := range catalog {
		runs[e.ID] = NewRun(e.ID)
	}
	return runs
}

// CloneRunSet deep-copies a run map for persistence or display snapshots.
func CloneRunSet(runs map[string]*Run) map[string]*Run {
	out := make(map[string]*Run, len(runs))
	for id, r := range runs {
		out[id] = r.Clone()
	}
	return out
}

// TotalTokens sums usage across all runs in the set.
func TotalTokens(runs map[string]*Run) int {
	total := 0
	for _, r := range runs {
		total += r.TokenUsage.TotalTokens
	}
	return total
}
