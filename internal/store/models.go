package store

// RunStatus is the lifecycle state of a whole run. A run that reaches
// StatusCompleted or StatusFailed is never reopened.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// StepStatus is the lifecycle state of one step. Transitions only move
// forward: pending -> running|done|failed, running -> done|failed.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Terminal reports whether s can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed
}

// Step is one planned unit of tool invocation within a run.
type Step struct {
	ID       int        `json:"id"`
	Title    string     `json:"title"`
	Tool     string     `json:"tool"`
	Input    string     `json:"input"`
	Status   StepStatus `json:"status"`
	Output   string     `json:"output,omitempty"`
	Evidence []string   `json:"evidence"`
}

// Source is one externally discovered reference backing the report.
// The URL is the dedup key; a URL appears at most once per run.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Memory is the run-scoped working knowledge kept outside the steps.
type Memory struct {
	KeywordsTried    []string `json:"keywords_tried"`
	FailedAttempts   []string `json:"failed_attempts"`
	SourcesCollected []Source `json:"sources_collected"`
}

// Artifacts names the files a run produces relative to its directory.
type Artifacts struct {
	Sources string `json:"sources"`
	Report  string `json:"report"`
}

// Run is the full persisted state of one research session.
type Run struct {
	Goal      string    `json:"goal"`
	Status    RunStatus `json:"status"`
	Steps     []Step    `json:"steps"`
	Artifacts Artifacts `json:"artifacts"`
	Memory    Memory    `json:"memory"`
}

// PendingSteps returns the steps still waiting to execute, in id order.
func (r *Run) PendingSteps() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Status == StepPending {
			out = append(out, s)
		}
	}
	return out
}

// Sources returns the collected sources in insertion order.
func (r *Run) Sources() []Source {
	return r.Memory.SourcesCollected
}
