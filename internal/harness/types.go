package harness

// TraceEvent records the outcome of one step. Commits are named by label.
type TraceEvent struct {
	Step       int          `json:"step"`
	Action     string       `json:"action"`
	Outcome    string       `json:"outcome"`
	Bookmark   string       `json:"bookmark,omitempty"`
	Head       string       `json:"head,omitempty"`
	Rebased    []RebaseLine `json:"rebased,omitempty"`
	Rejections []string     `json:"rejections,omitempty"`
	Conflicts  []string     `json:"conflicts,omitempty"`
}

// RebaseLine records that Old was pushrebased to New.
type RebaseLine struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// LogLine is one bookmark update log entry with commits named by label.
type LogLine struct {
	Bookmark string `json:"bookmark"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Reason   string `json:"reason"`
	Bundle   string `json:"bundle,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Bookmarks is the final bookmark state, name to label.
	Bookmarks map[string]string `json:"bookmarks"`

	// Log is the full bookmark update log, oldest first.
	Log []LogLine `json:"log"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Bookmarks: make(map[string]string),
		Log:       []LogLine{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
