// Package agent holds the orchestration core: a bounded
// decide/execute/observe cycle over persisted task state, followed by
// report synthesis, rule verification, and finalization.
package agent

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nkapoor/ferret/internal/advisor"
	"github.com/nkapoor/ferret/internal/governance"
	"github.com/nkapoor/ferret/internal/observability"
	"github.com/nkapoor/ferret/internal/render"
	"github.com/nkapoor/ferret/internal/store"
	"github.com/nkapoor/ferret/internal/tools"
	"github.com/nkapoor/ferret/internal/verify"
)

const (
	maxObservationChars = 500
	maxFollowUps        = 5
	maxSnippetFallback  = 10
)

// Options bound and shape a run. The early-exit thresholds trade
// completeness for latency: once enough sources exist and enough
// iterations have passed, the loop reports with what it has.
type Options struct {
	MaxIterations         int
	EarlyExitSources      int
	EarlyExitMinIteration int
	Format                string // pdf, slides, web, or all
	Theme                 string
}

// Deps are the collaborators a Loop drives. Index, Policy, Sink and
// Logger are optional.
type Deps struct {
	Store     *store.FileStore
	Index     *store.Index
	Advisor   advisor.Advisor
	Registry  *tools.Registry
	Verifier  *verify.Engine
	Renderers []render.Renderer
	Policy    governance.PolicyEngine
	Sink      observability.Sink
	Logger    *observability.Logger
}

// Outcome is the result handed back to the caller after Finalized.
type Outcome struct {
	Success      bool
	RunID        string
	ReportPath   string
	Error        string
	Verification verify.Report
	Outputs      map[string]render.Result
}

// Loop executes one run at a time. All state mutations are serialized
// through the single control flow; nothing here needs locking.
type Loop struct {
	deps Deps
	opts Options

	// contents collects extracted page text for report synthesis.
	contents []string
}

func New(deps Deps, opts Options) *Loop {
	if deps.Sink == nil {
		deps.Sink = observability.NopSink{}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.EarlyExitSources <= 0 {
		opts.EarlyExitSources = 5
	}
	if opts.EarlyExitMinIteration <= 0 {
		opts.EarlyExitMinIteration = 5
	}
	if opts.Format == "" {
		opts.Format = "pdf"
	}
	return &Loop{deps: deps, opts: opts}
}

// Run drives a goal from Planning through Finalized and returns the
// outcome. The run's persisted status and the verifier's itemized
// results are the failure-reporting surface; Run only returns a Go
// error when the run could not even be created.
func (l *Loop) Run(ctx context.Context, goal string) (*Outcome, error) {
	runID, err := l.deps.Store.CreateRun(goal)
	if err != nil {
		return nil, err
	}
	if l.deps.Index != nil {
		_ = l.deps.Index.Record(runID, goal)
	}

	// External tool resources are released on every exit path,
	// including a fatal planning failure.
	defer l.deps.Registry.Close()

	outcome := &Outcome{
		RunID:      runID,
		ReportPath: filepath.Join(l.deps.Store.RunPath(), "report.md"),
		Outputs:    map[string]render.Result{},
	}

	l.deps.Sink.Printf("[ferret] starting run %s", runID)

	if err := l.plan(ctx, goal); err != nil {
		outcome.Error = err.Error()
		l.finalize(outcome, false)
		return outcome, nil
	}

	l.iterate(ctx, goal)
	l.report(ctx, goal, outcome)

	reportText := l.deps.Store.ReportText()
	outcome.Verification = l.deps.Verifier.Verify(l.deps.Store.State(), reportText)

	var failedRules []string
	for _, r := range outcome.Verification.Results {
		if !r.Passed {
			failedRules = append(failedRules, r.Rule)
		}
	}
	l.deps.Logger.LogVerify(outcome.RunID, outcome.Verification.Passed, failedRules)

	l.finalize(outcome, outcome.Verification.Passed)
	return outcome, nil
}

// plan asks the advisor for the initial steps. Any fault here is fatal
// to the run.
func (l *Loop) plan(ctx context.Context, goal string) error {
	steps, err := l.deps.Advisor.Plan(ctx, goal)
	if err != nil {
		l.deps.Sink.Printf("[planner] failed to create plan: %v", err)
		return fmt.Errorf("planning failed: %w", err)
	}

	for _, s := range steps {
		l.deps.Store.AddStep(s.Title, s.Tool, s.Input)
	}
	l.deps.Logger.Log(observability.Event{
		Type:  observability.EventTypePlan,
		RunID: l.runID(),
		Data:  map[string]any{"steps": len(steps)},
	})
	l.deps.Sink.Printf("[planner] plan created with %d steps", len(steps))
	return nil
}

// iterate runs the bounded decide/execute/observe cycle. It always
// returns within MaxIterations regardless of advisor behavior.
func (l *Loop) iterate(ctx context.Context, goal string) {
	for iteration := 1; iteration <= l.opts.MaxIterations; iteration++ {
		state := l.deps.Store.State()

		sourceCount := len(state.Sources())
		if sourceCount >= l.opts.EarlyExitSources && iteration >= l.opts.EarlyExitMinIteration {
			l.deps.Sink.Printf("[ferret] %d sources after %d iterations, generating report", sourceCount, iteration)
			return
		}

		action, err := l.deps.Advisor.Decide(ctx, state)
		if err != nil {
			// A misbehaving advisor must not crash the run; report
			// with whatever has been gathered.
			l.deps.Sink.Printf("[planner] decision failed: %v", err)
			return
		}
		if action == nil {
			l.deps.Sink.Printf("[planner] no more actions needed")
			return
		}
		l.deps.Logger.LogDecision(l.runID(), iteration, action.Tool, action.Reason)
		l.deps.Sink.Printf("[planner] next action: %s - %s", action.Tool, action.Reason)

		if action.Tool == advisor.ToolGenerateReport {
			return
		}

		l.executeOnce(ctx, iteration, action)
	}
	l.deps.Sink.Printf("[ferret] iteration budget exhausted, generating report")
}

// executeOnce performs one action and processes its observation
// exactly once.
func (l *Loop) executeOnce(ctx context.Context, iteration int, action *advisor.Action) {
	if action.Tool == "browser.search" {
		l.deps.Store.AddKeyword(action.Input)
	}

	l.deps.Logger.LogToolCall(l.runID(), iteration, action.Tool, action.Input)
	result := l.execute(ctx, action)

	observation := truncate(result.Summary(), maxObservationChars)
	ok, retryable := tools.Classify(result)
	l.deps.Logger.LogToolResult(l.runID(), iteration, action.Tool, ok, observation)
	if ok {
		l.deps.Sink.Printf("[fast] action OK")
	} else {
		l.deps.Sink.Printf("[fast] action FAILED")
	}

	if action.StepID != 0 {
		switch {
		case ok:
			l.deps.Store.UpdateStep(action.StepID, store.StepDone, observation, evidence(result))
		case retryable:
			// No terminal status: the step stays pending and remains
			// eligible for re-decision on a later iteration.
			l.deps.Sink.Printf("[fast] retry suggested for step %d", action.StepID)
		default:
			l.deps.Store.UpdateStep(action.StepID, store.StepFailed, observation, nil)
			l.deps.Store.AddFailedAttempt(fmt.Sprintf("Step %d: %s", action.StepID, observation))
		}
	}

	switch action.Tool {
	case "browser.search":
		l.processSearchResults(result, action.Input)
	case "browser.open":
		if ok {
			l.deps.Store.AddStep("Extract page content", "browser.extract", "readability")
		}
	case "browser.extract":
		l.processExtraction(result)
	}
}

// execute screens the action through policy, then dispatches it.
// Expected failures come back as values; the adapter also normalizes
// panics, so nothing here can terminate the process.
func (l *Loop) execute(ctx context.Context, action *advisor.Action) tools.Result {
	if l.deps.Policy != nil {
		verdict, err := l.deps.Policy.Evaluate(ctx, governance.Request{
			Tool:  action.Tool,
			Input: action.Input,
			RunID: l.runID(),
		})
		if err == nil && verdict.Effect == governance.EffectDeny {
			l.deps.Logger.Log(observability.Event{
				Type:  observability.EventTypePolicy,
				RunID: l.runID(),
				Data:  map[string]string{"tool": action.Tool, "reason": verdict.Reason},
			})
			return tools.Errf(tools.KindText, "denied by policy: %s", verdict.Reason)
		}
	}

	return l.deps.Registry.Execute(ctx, action.Tool, action.Input)
}

// processSearchResults records hits as sources and queues a bounded
// number of follow-up open steps.
func (l *Loop) processSearchResults(result tools.Result, keyword string) {
	if result.Kind != tools.KindHits {
		return
	}

	queued := 0
	for _, hit := range result.Hits {
		if queued >= maxFollowUps {
			break
		}
		if hit.Err != "" || hit.URL == "" {
			continue
		}
		title := hit.Title
		if title == "" {
			title = "Untitled"
		}
		l.deps.Store.AddSource(title, hit.URL, hit.Snippet)
		l.deps.Store.AddStep("Open: "+truncate(title, 30), "browser.open", hit.URL)
		queued++
	}

	l.deps.Sink.Printf("[ferret] found %d results for '%s'", len(result.Hits), keyword)
}

func (l *Loop) processExtraction(result tools.Result) {
	if result.Content == nil || result.Content.Content == "" {
		return
	}
	l.contents = append(l.contents, result.Content.Content)
	l.deps.Sink.Printf("[fast] content collected (%d chars)", len(result.Content.Content))
}

// report synthesizes and persists the report, then fans out to the
// selected renderers. Renderer failures are recorded independently and
// never abort the others.
func (l *Loop) report(ctx context.Context, goal string, outcome *Outcome) {
	l.deps.Sink.Printf("[planner] generating final report...")

	state := l.deps.Store.State()
	sources := state.Sources()

	contents := append([]string(nil), l.contents...)
	if len(contents) == 0 {
		l.deps.Sink.Printf("[ferret] no extracted content, using source snippets...")
		for i, s := range sources {
			if i >= maxSnippetFallback {
				break
			}
			if s.Snippet != "" {
				contents = append(contents, fmt.Sprintf("Source: %s\n%s", s.Title, s.Snippet))
			}
		}
	}

	reportText, err := l.deps.Advisor.Report(ctx, goal, sources, contents)
	if err != nil {
		// Leave the report missing; the verifier will say so.
		l.deps.Sink.Printf("[planner] report generation failed: %v", err)
		return
	}
	if err := l.deps.Store.SaveReport(reportText); err != nil {
		l.deps.Sink.Printf("[ferret] %v", err)
		return
	}
	l.deps.Logger.Log(observability.Event{
		Type:  observability.EventTypeReport,
		RunID: l.runID(),
		Data:  map[string]any{"chars": len(reportText), "sources": len(sources)},
	})
	l.deps.Sink.Printf("[ferret] markdown report saved")

	title := truncate(goal, 50)
	for _, renderer := range l.deps.Renderers {
		format := renderer.Format()
		if l.opts.Format != "all" && l.opts.Format != format {
			continue
		}

		job := render.Job{
			Report:  reportText,
			Title:   title,
			OutPath: filepath.Join(l.deps.Store.RunPath(), outputFile(format)),
			Theme:   l.opts.Theme,
		}
		res := renderer.Render(ctx, job)
		outcome.Outputs[format] = res

		l.deps.Logger.Log(observability.Event{
			Type:  observability.EventTypeRender,
			RunID: l.runID(),
			Data:  res,
		})
		if res.Success {
			l.deps.Sink.Printf("[renderer] %s saved: %s", format, res.Path)
		} else {
			l.deps.Sink.Printf("[renderer] %s failed: %s", format, res.Error)
		}
	}
}

// finalize seals the run status, snapshots the source index, and
// mirrors the status into the run index.
func (l *Loop) finalize(outcome *Outcome, passed bool) {
	status := store.StatusFailed
	if passed {
		status = store.StatusCompleted
	}
	l.deps.Store.SetStatus(status)
	if err := l.deps.Store.SaveSources(); err != nil {
		l.deps.Sink.Printf("[ferret] %v", err)
	}
	if l.deps.Index != nil {
		_ = l.deps.Index.SetStatus(outcome.RunID, status)
	}
	l.deps.Logger.LogStatus(outcome.RunID, string(status))

	outcome.Success = passed
	if passed {
		l.deps.Sink.Printf("[ferret] task completed successfully")
	} else {
		l.deps.Sink.Printf("[ferret] task finished with failures")
	}
}

func (l *Loop) runID() string {
	return filepath.Base(l.deps.Store.RunPath())
}

// evidence pulls the URLs a successful result is backed by.
func evidence(result tools.Result) []string {
	switch result.Kind {
	case tools.KindHits:
		var urls []string
		for _, h := range result.Hits {
			if h.URL != "" {
				urls = append(urls, h.URL)
			}
			if len(urls) == maxFollowUps {
				break
			}
		}
		return urls
	case tools.KindPage:
		if result.Page != nil {
			return []string{result.Page.URL}
		}
	case tools.KindContent:
		if result.Content != nil {
			return []string{result.Content.URL}
		}
	}
	return nil
}

func outputFile(format string) string {
	switch format {
	case "pdf":
		return "report.pdf"
	case "slides":
		return "slides.html"
	default:
		return "index.html"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
