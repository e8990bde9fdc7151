package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned by LoadRun when no persisted state exists
// for the requested run id.
var ErrNotFound = errors.New("run not found")

const (
	taskFile    = "task.json"
	sourcesFile = "sources.json"
	reportFile  = "report.md"
	auditFile   = "logs.txt"
)

var slugStrip = regexp.MustCompile(`[^a-zA-Z0-9_\s-]`)

// FileStore persists one run's state under <runsDir>/<runID>/. Every
// mutation rewrites task.json in full (temp file + atomic rename, so a
// reader never observes a torn file) and appends one line to the run's
// audit trail. The store holds the authoritative in-memory state; the
// loop is the only writer, so no locking is needed.
type FileStore struct {
	runsDir string
	runDir  string
	state   Run
}

// NewFileStore prepares the runs directory.
func NewFileStore(runsDir string) (*FileStore, error) {
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &FileStore{runsDir: runsDir}, nil
}

// CreateRun allocates a run directory and initializes its state.
// The run id is the creation timestamp plus a slug of the goal, made
// unique with a numeric suffix if a same-second run already exists.
func (fs *FileStore) CreateRun(goal string) (string, error) {
	slug := slugStrip.ReplaceAllString(goal, "")
	if len(slug) > 30 {
		slug = slug[:30]
	}
	slug = strings.ReplaceAll(strings.TrimSpace(slug), " ", "_")

	base := time.Now().Format("2006-01-02_150405")
	if slug != "" {
		base += "_" + slug
	}

	runID := base
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(fs.runsDir, runID)); os.IsNotExist(err) {
			break
		}
		runID = fmt.Sprintf("%s-%d", base, n)
	}

	runDir := filepath.Join(fs.runsDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	fs.runDir = runDir
	fs.state = Run{
		Goal:   goal,
		Status: StatusRunning,
		Steps:  []Step{},
		Artifacts: Artifacts{
			Sources: sourcesFile,
			Report:  reportFile,
		},
		Memory: Memory{
			KeywordsTried:    []string{},
			FailedAttempts:   []string{},
			SourcesCollected: []Source{},
		},
	}

	if err := fs.saveTask(); err != nil {
		return "", err
	}
	fs.audit("Task created: " + goal)

	return runID, nil
}

// LoadRun reads a previously persisted run into the store.
func (fs *FileStore) LoadRun(runID string) (*Run, error) {
	runDir := filepath.Join(fs.runsDir, runID)
	data, err := os.ReadFile(filepath.Join(runDir, taskFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read task state: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode task state: %w", err)
	}

	fs.runDir = runDir
	fs.state = run
	snapshot := fs.snapshot()
	return &snapshot, nil
}

// AddStep appends a pending step and returns its id. Ids are dense,
// starting at 1, and never reused.
func (fs *FileStore) AddStep(title, tool, input string) int {
	id := len(fs.state.Steps) + 1
	fs.state.Steps = append(fs.state.Steps, Step{
		ID:       id,
		Title:    title,
		Tool:     tool,
		Input:    input,
		Status:   StepPending,
		Evidence: []string{},
	})

	fs.persist(fmt.Sprintf("Step added: [%d] %s", id, title))
	return id
}

// UpdateStep advances a step's status and optionally records output and
// evidence. An unknown id is a deliberate no-op: the loop may hold ids
// from a stale snapshot. A terminal step is never reopened.
func (fs *FileStore) UpdateStep(stepID int, status StepStatus, output string, evidence []string) {
	for i := range fs.state.Steps {
		step := &fs.state.Steps[i]
		if step.ID != stepID {
			continue
		}
		if step.Status.Terminal() {
			return
		}
		step.Status = status
		if output != "" {
			step.Output = output
		}
		if evidence != nil {
			step.Evidence = evidence
		}
		fs.persist(fmt.Sprintf("Step [%d] updated: %s", stepID, status))
		return
	}
}

// AddSource records a discovered source. A URL already collected, or
// an empty URL, is ignored.
func (fs *FileStore) AddSource(title, url, snippet string) {
	if url == "" {
		return
	}
	for _, s := range fs.state.Memory.SourcesCollected {
		if s.URL == url {
			return
		}
	}
	fs.state.Memory.SourcesCollected = append(fs.state.Memory.SourcesCollected, Source{
		Title:   title,
		URL:     url,
		Snippet: snippet,
	})
	fs.persist("Source added: " + title)
}

// AddKeyword records a search keyword once.
func (fs *FileStore) AddKeyword(keyword string) {
	for _, k := range fs.state.Memory.KeywordsTried {
		if k == keyword {
			return
		}
	}
	fs.state.Memory.KeywordsTried = append(fs.state.Memory.KeywordsTried, keyword)
	fs.persist("Keyword tried: " + keyword)
}

// AddFailedAttempt appends to the failure journal.
func (fs *FileStore) AddFailedAttempt(description string) {
	fs.state.Memory.FailedAttempts = append(fs.state.Memory.FailedAttempts, description)
	fs.persist("Failed attempt: " + description)
}

// SetStatus overwrites the run status.
func (fs *FileStore) SetStatus(status RunStatus) {
	fs.state.Status = status
	fs.persist("Task status: " + string(status))
}

// State returns a snapshot of the current in-memory run state. It does
// not re-read storage.
func (fs *FileStore) State() Run {
	return fs.snapshot()
}

// SaveReport writes the synthesized report next to the task state.
func (fs *FileStore) SaveReport(content string) error {
	if err := os.WriteFile(filepath.Join(fs.runDir, reportFile), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	fs.audit("Report saved")
	return nil
}

// ReportText reads back the persisted report, or "" if none exists.
func (fs *FileStore) ReportText() string {
	data, err := os.ReadFile(filepath.Join(fs.runDir, reportFile))
	if err != nil {
		return ""
	}
	return string(data)
}

// SaveSources snapshots the collected sources into sources.json.
func (fs *FileStore) SaveSources() error {
	data, err := json.MarshalIndent(fs.state.Memory.SourcesCollected, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	if err := os.WriteFile(filepath.Join(fs.runDir, sourcesFile), data, 0644); err != nil {
		return fmt.Errorf("failed to save sources: %w", err)
	}
	fs.audit("Sources saved")
	return nil
}

// RunPath returns the directory of the current run.
func (fs *FileStore) RunPath() string {
	return fs.runDir
}

func (fs *FileStore) snapshot() Run {
	run := fs.state
	run.Steps = append([]Step(nil), fs.state.Steps...)
	for i := range run.Steps {
		run.Steps[i].Evidence = append([]string(nil), fs.state.Steps[i].Evidence...)
	}
	run.Memory.KeywordsTried = append([]string(nil), fs.state.Memory.KeywordsTried...)
	run.Memory.FailedAttempts = append([]string(nil), fs.state.Memory.FailedAttempts...)
	run.Memory.SourcesCollected = append([]Source(nil), fs.state.Memory.SourcesCollected...)
	return run
}

func (fs *FileStore) persist(auditLine string) {
	if err := fs.saveTask(); err != nil {
		fs.audit("Persist error: " + err.Error())
		return
	}
	fs.audit(auditLine)
}

// saveTask rewrites the full state. Writing to a temp file and renaming
// keeps readers from ever seeing a half-written task.json.
func (fs *FileStore) saveTask() error {
	if fs.runDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(fs.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task state: %w", err)
	}

	target := filepath.Join(fs.runDir, taskFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write task state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace task state: %w", err)
	}
	return nil
}

func (fs *FileStore) audit(message string) {
	if fs.runDir == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(fs.runDir, auditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] %s\n", timestamp, message)
}
