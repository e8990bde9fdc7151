package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nkapoor/ferret/internal/advisor"
	"github.com/nkapoor/ferret/internal/governance"
	"github.com/nkapoor/ferret/internal/render"
	"github.com/nkapoor/ferret/internal/store"
	"github.com/nkapoor/ferret/internal/tools"
	"github.com/nkapoor/ferret/internal/verify"
)

// fakeAdvisor scripts the planning and decision surface. Decide falls
// back to pending-step order when no script is set, mirroring the real
// advisor's shape.
type fakeAdvisor struct {
	plan      []advisor.PlannedStep
	planErr   error
	decide    func(state store.Run) (*advisor.Action, error)
	report    string
	reportErr error
}

func (f *fakeAdvisor) Plan(ctx context.Context, goal string) ([]advisor.PlannedStep, error) {
	return f.plan, f.planErr
}

func (f *fakeAdvisor) Decide(ctx context.Context, state store.Run) (*advisor.Action, error) {
	if f.decide != nil {
		return f.decide(state)
	}
	pending := state.PendingSteps()
	if len(pending) == 0 {
		return nil, nil
	}
	next := pending[0]
	return &advisor.Action{Tool: next.Tool, Input: next.Input, StepID: next.ID, Reason: next.Title}, nil
}

func (f *fakeAdvisor) Report(ctx context.Context, goal string, sources []store.Source, contents []string) (string, error) {
	if f.reportErr != nil {
		return "", f.reportErr
	}
	return f.report, nil
}

// scriptTool returns results keyed by input, or a default.
type scriptTool struct {
	name     string
	results  map[string]tools.Result
	fallback tools.Result
	calls    int
}

func (s *scriptTool) Name() string        { return s.name }
func (s *scriptTool) Description() string { return "scripted" }
func (s *scriptTool) Execute(ctx context.Context, input string) tools.Result {
	s.calls++
	if res, ok := s.results[input]; ok {
		return res
	}
	return s.fallback
}

// closeTool records whether the registry released it.
type closeTool struct {
	scriptTool
	closed bool
}

func (c *closeTool) Close() error {
	c.closed = true
	return nil
}

// hitsFor fabricates n hits spread across distinct hosts so the
// diversity rule sees a healthy mix.
func hitsFor(n int, domain string) tools.Result {
	var hits []tools.Hit
	for i := 1; i <= n; i++ {
		hits = append(hits, tools.Hit{
			Title:   fmt.Sprintf("Result %d", i),
			URL:     fmt.Sprintf("https://site%d.%s/article-%d", i, domain, i),
			Snippet: "snippet text",
		})
	}
	return tools.Result{Kind: tools.KindHits, Hits: hits}
}

// passingReport satisfies every default rule at low thresholds.
const passingReport = `# Findings

## Summary

What we learned.

## Details

Depth and nuance, repeated enough to clear the length floor.

## Sources

- listed
`

func newTestLoop(t *testing.T, adv advisor.Advisor, reg *tools.Registry, opts Options) (*Loop, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if reg == nil {
		reg = tools.NewRegistry()
	}
	loop := New(Deps{
		Store:    fs,
		Advisor:  adv,
		Registry: reg,
		Verifier: verify.NewEngine(1, 10),
	}, opts)
	return loop, fs
}

func TestRun_PlanningFailureIsFatal(t *testing.T) {
	reg := tools.NewRegistry()
	closer := &closeTool{scriptTool: scriptTool{name: "browser.open"}}
	reg.Register(closer)

	adv := &fakeAdvisor{planErr: errors.New("model unreachable")}
	loop, fs := newTestLoop(t, adv, reg, Options{MaxIterations: 5})

	outcome, err := loop.Run(context.Background(), "doomed goal")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Success {
		t.Error("planning failure must fail the run")
	}
	if outcome.Error == "" {
		t.Error("outcome should carry the planning error")
	}
	if fs.State().Status != store.StatusFailed {
		t.Errorf("persisted status = %s, want failed", fs.State().Status)
	}
	if len(fs.State().Steps) != 0 {
		t.Error("no partial run may be attempted after a planning fault")
	}
	if !closer.closed {
		t.Error("tool resources must be released even on fatal planning exit")
	}
}

func TestRun_BoundedByMaxIterations(t *testing.T) {
	// An advisor that always returns a non-terminal action must not
	// spin forever.
	decisions := 0
	adv := &fakeAdvisor{
		plan: []advisor.PlannedStep{{Title: "s", Tool: "noop", Input: "x"}},
		decide: func(state store.Run) (*advisor.Action, error) {
			decisions++
			return &advisor.Action{Tool: "noop", Input: "x"}, nil
		},
		report: passingReport,
	}

	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "noop", fallback: tools.Result{Kind: tools.KindText, Output: "ok"}})

	loop, _ := newTestLoop(t, adv, reg, Options{MaxIterations: 7})
	if _, err := loop.Run(context.Background(), "busy goal"); err != nil {
		t.Fatal(err)
	}
	if decisions != 7 {
		t.Errorf("advisor consulted %d times, want exactly MaxIterations=7", decisions)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	searches := &scriptTool{name: "browser.search", fallback: hitsFor(6, "alpha.example")}
	opens := &scriptTool{name: "browser.open", fallback: tools.Result{
		Kind: tools.KindPage, Page: &tools.Page{URL: "https://alpha.example/article-1", Title: "Article"},
	}}
	extracts := &scriptTool{name: "browser.extract", fallback: tools.Result{
		Kind: tools.KindContent, Content: &tools.Extract{
			Title: "Article", Content: "long extracted body", URL: "https://alpha.example/article-1",
		},
	}}

	reg := tools.NewRegistry()
	reg.Register(searches)
	reg.Register(opens)
	reg.Register(extracts)

	adv := &fakeAdvisor{
		plan: []advisor.PlannedStep{
			{Title: "Search the topic", Tool: "browser.search", Input: "go schedulers"},
			{Title: "Search deeper", Tool: "browser.search", Input: "go scheduler preemption"},
			{Title: "Note findings", Tool: "noop", Input: ""},
		},
		report: passingReport,
	}

	loop, fs := newTestLoop(t, adv, reg, Options{
		MaxIterations:         20,
		EarlyExitSources:      5,
		EarlyExitMinIteration: 5,
	})

	outcome, err := loop.Run(context.Background(), "how go schedulers work")
	if err != nil {
		t.Fatal(err)
	}

	state := fs.State()

	// One search yields 6 hits but only 5 follow-up opens are queued,
	// deduplicated sources included.
	if got := len(state.Sources()); got < 5 {
		t.Errorf("sources = %d, want >= 5", got)
	}
	// Early exit: with 5+ sources the loop stops at iteration 5, so
	// the extract steps queued behind the first opens have run but the
	// whole plan has not.
	if searches.calls == 0 || opens.calls == 0 {
		t.Errorf("search/open not exercised: %d/%d", searches.calls, opens.calls)
	}
	if !outcome.Success {
		t.Errorf("verification failed: %+v", outcome.Verification.Results)
	}
	if state.Status != store.StatusCompleted {
		t.Errorf("status = %s", state.Status)
	}

	// report.md and sources.json are persisted.
	if _, err := os.Stat(outcome.ReportPath); err != nil {
		t.Errorf("report not persisted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fs.RunPath(), "sources.json")); err != nil {
		t.Errorf("sources not persisted: %v", err)
	}
}

func TestRun_EarlyExitNeedsBothThresholds(t *testing.T) {
	// 6 sources arrive on iteration 1; the loop must still run until
	// iteration 5 before the early exit fires.
	iterations := 0
	adv := &fakeAdvisor{
		plan: []advisor.PlannedStep{{Title: "seed", Tool: "browser.search", Input: "q"}},
		decide: func(state store.Run) (*advisor.Action, error) {
			iterations++
			pending := state.PendingSteps()
			if len(pending) > 0 {
				next := pending[0]
				return &advisor.Action{Tool: next.Tool, Input: next.Input, StepID: next.ID}, nil
			}
			return &advisor.Action{Tool: "noop", Input: ""}, nil
		},
		report: passingReport,
	}

	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "browser.search", fallback: hitsFor(6, "alpha.example")})
	reg.Register(&scriptTool{name: "browser.open", fallback: tools.Result{Kind: tools.KindPage, Page: &tools.Page{URL: "u"}}})
	reg.Register(&scriptTool{name: "browser.extract", fallback: tools.Result{Kind: tools.KindContent, Content: &tools.Extract{Content: "c"}}})
	reg.Register(&scriptTool{name: "noop", fallback: tools.Result{Kind: tools.KindText, Output: "ok"}})

	loop, _ := newTestLoop(t, adv, reg, Options{
		MaxIterations:         20,
		EarlyExitSources:      5,
		EarlyExitMinIteration: 5,
	})
	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}

	// Iterations 1..4 each consult the advisor; the check at the top
	// of iteration 5 exits before consulting it again.
	if iterations != 4 {
		t.Errorf("advisor consulted %d times, want 4 (early exit at iteration 5)", iterations)
	}
}

func TestRun_FailedStepRecorded(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "open dead link", Tool: "browser.open", Input: "https://dead.example"}},
		report: passingReport,
	}

	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "browser.open", fallback: tools.Errf(tools.KindPage, "connection refused")})

	loop, fs := newTestLoop(t, adv, reg, Options{MaxIterations: 3})
	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}

	state := fs.State()
	if state.Steps[0].Status != store.StepFailed {
		t.Errorf("step status = %s, want failed", state.Steps[0].Status)
	}
	if len(state.Memory.FailedAttempts) == 0 {
		t.Error("failed attempt not journaled")
	}
	if !strings.Contains(state.Steps[0].Output, "connection refused") {
		t.Errorf("step output = %q", state.Steps[0].Output)
	}
}

func TestRun_RetryableFailureLeavesStepPending(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "thin search", Tool: "browser.search", Input: "obscure"}},
		report: passingReport,
	}

	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "browser.search", fallback: tools.Result{Kind: tools.KindHits, Hits: []tools.Hit{}}})

	loop, fs := newTestLoop(t, adv, reg, Options{MaxIterations: 3})
	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}

	state := fs.State()
	if state.Steps[0].Status != store.StepPending {
		t.Errorf("retryable failure must not write a terminal status, got %s", state.Steps[0].Status)
	}
	if len(state.Memory.FailedAttempts) != 0 {
		t.Errorf("retryable failure must not journal an attempt: %v", state.Memory.FailedAttempts)
	}
}

func TestRun_ReportSentinelStopsIterating(t *testing.T) {
	calls := 0
	adv := &fakeAdvisor{
		plan: []advisor.PlannedStep{{Title: "s", Tool: "noop", Input: ""}},
		decide: func(state store.Run) (*advisor.Action, error) {
			calls++
			return &advisor.Action{Tool: advisor.ToolGenerateReport, Input: state.Goal}, nil
		},
		report: passingReport,
	}

	loop, fs := newTestLoop(t, adv, tools.NewRegistry(), Options{MaxIterations: 10})
	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("loop kept iterating after the report sentinel: %d decisions", calls)
	}
	if fs.ReportText() == "" {
		t.Error("report not written")
	}
}

func TestRun_SnippetFallbackWhenNoContent(t *testing.T) {
	var gotContents []string
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "search", Tool: "browser.search", Input: "q"}},
		report: passingReport,
	}
	// Wrap Report to capture the contents the loop hands over.
	wrapped := &captureAdvisor{fakeAdvisor: adv, captured: &gotContents}

	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "browser.search", fallback: hitsFor(3, "alpha.example")})
	// No open/extract tools registered: their follow-up steps fail as
	// unknown tools, so no content is ever collected.

	loop, _ := newTestLoop(t, wrapped, reg, Options{MaxIterations: 4})
	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}

	if len(gotContents) == 0 {
		t.Fatal("expected snippet fallback contents")
	}
	if !strings.HasPrefix(gotContents[0], "Source: ") {
		t.Errorf("fallback content shape: %q", gotContents[0])
	}
}

type captureAdvisor struct {
	*fakeAdvisor
	captured *[]string
}

func (c *captureAdvisor) Report(ctx context.Context, goal string, sources []store.Source, contents []string) (string, error) {
	*c.captured = append([]string(nil), contents...)
	return c.fakeAdvisor.Report(ctx, goal, sources, contents)
}

func TestRun_PolicyDenialFailsStep(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "wipe", Tool: "code.run", Input: "rm -rf /"}},
		report: passingReport,
	}

	shell := &scriptTool{name: "code.run", fallback: tools.Result{Kind: tools.KindText, Output: "done"}}
	reg := tools.NewRegistry()
	reg.Register(shell)

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop := New(Deps{
		Store:    fs,
		Advisor:  adv,
		Registry: reg,
		Verifier: verify.NewEngine(1, 10),
		Policy:   governance.NewDefaultPolicyEngine(),
	}, Options{MaxIterations: 2})

	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}

	if shell.calls != 0 {
		t.Error("denied input must never reach the tool")
	}
	state := fs.State()
	if state.Steps[0].Status != store.StepFailed {
		t.Errorf("step status = %s, want failed", state.Steps[0].Status)
	}
	if !strings.Contains(state.Steps[0].Output, "denied by policy") {
		t.Errorf("step output = %q", state.Steps[0].Output)
	}
}

type fakeRenderer struct {
	format string
	fail   bool
	calls  int
}

func (f *fakeRenderer) Format() string { return f.format }
func (f *fakeRenderer) Render(ctx context.Context, job render.Job) render.Result {
	f.calls++
	if f.fail {
		return render.Result{Format: f.format, Path: job.OutPath, Error: "renderer exploded"}
	}
	return render.Result{Format: f.format, Path: job.OutPath, Success: true}
}

func TestRun_RendererFanOutIndependent(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "s", Tool: "noop", Input: ""}},
		report: passingReport,
	}
	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "noop", fallback: tools.Result{Kind: tools.KindText, Output: "ok"}})

	pdf := &fakeRenderer{format: "pdf", fail: true}
	web := &fakeRenderer{format: "web"}

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop := New(Deps{
		Store:     fs,
		Advisor:   adv,
		Registry:  reg,
		Verifier:  verify.NewEngine(1, 10),
		Renderers: []render.Renderer{pdf, web},
	}, Options{MaxIterations: 3, Format: "all"})

	outcome, err := loop.Run(context.Background(), "goal")
	if err != nil {
		t.Fatal(err)
	}

	if pdf.calls != 1 || web.calls != 1 {
		t.Errorf("renderer calls pdf=%d web=%d, want 1/1", pdf.calls, web.calls)
	}
	if outcome.Outputs["pdf"].Success {
		t.Error("pdf failure should be recorded")
	}
	if !outcome.Outputs["web"].Success {
		t.Error("web renderer must run despite pdf failure")
	}
}

func TestRun_FormatSelection(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "s", Tool: "noop", Input: ""}},
		report: passingReport,
	}
	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "noop", fallback: tools.Result{Kind: tools.KindText, Output: "ok"}})

	pdf := &fakeRenderer{format: "pdf"}
	slides := &fakeRenderer{format: "slides"}

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop := New(Deps{
		Store:     fs,
		Advisor:   adv,
		Registry:  reg,
		Verifier:  verify.NewEngine(1, 10),
		Renderers: []render.Renderer{pdf, slides},
	}, Options{MaxIterations: 3, Format: "slides"})

	if _, err := loop.Run(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if pdf.calls != 0 || slides.calls != 1 {
		t.Errorf("format selection wrong: pdf=%d slides=%d", pdf.calls, slides.calls)
	}
}

func TestRun_VerificationFailureFailsRun(t *testing.T) {
	adv := &fakeAdvisor{
		plan:   []advisor.PlannedStep{{Title: "s", Tool: "noop", Input: ""}},
		report: "too short", // misses sections and length
	}
	reg := tools.NewRegistry()
	reg.Register(&scriptTool{name: "noop", fallback: tools.Result{Kind: tools.KindText, Output: "ok"}})

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loop := New(Deps{
		Store:    fs,
		Advisor:  adv,
		Registry: reg,
		Verifier: verify.NewEngine(5, 800),
	}, Options{MaxIterations: 2})

	outcome, err := loop.Run(context.Background(), "goal")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Success {
		t.Error("run must fail when rules fail")
	}
	if fs.State().Status != store.StatusFailed {
		t.Errorf("status = %s", fs.State().Status)
	}
	if len(outcome.Verification.Results) != 6 {
		t.Errorf("itemized results missing: %+v", outcome.Verification)
	}
}
