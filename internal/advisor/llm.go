package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/nkapoor/ferret/internal/store"
)

// LLMAdvisor drives planning and decisions through a language model.
// Decisions follow a fixed shape: execute pending steps in order, widen
// the search while sources are short of the target, then hand off to
// report generation.
type LLMAdvisor struct {
	Model        llms.Model
	ToolCatalog  []string
	SourceTarget int
}

func NewLLMAdvisor(model llms.Model, toolCatalog []string, sourceTarget int) *LLMAdvisor {
	if sourceTarget <= 0 {
		sourceTarget = 5
	}
	return &LLMAdvisor{
		Model:        model,
		ToolCatalog:  toolCatalog,
		SourceTarget: sourceTarget,
	}
}

func (a *LLMAdvisor) chat(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, a.Model, prompt, llms.WithTemperature(0.3))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Plan asks the model for 3-5 initial steps as raw JSON.
func (a *LLMAdvisor) Plan(ctx context.Context, goal string) ([]PlannedStep, error) {
	prompt := fmt.Sprintf(`You are a research assistant. The user gives you a research goal and you plan the execution steps.

Goal: %s

Available tools:
%s

Plan 3-5 steps to complete this research task. Each step has:
- title: short step title
- tool: the tool to use
- input: the tool input

Reply with pure JSON only (no markdown wrapper):
[
  {"title": "Step 1 title", "tool": "browser.search", "input": "search keywords"},
  ...
]`, goal, strings.Join(a.ToolCatalog, "\n"))

	content, err := a.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planning request failed: %w", err)
	}

	var steps []PlannedStep
	if err := json.Unmarshal([]byte(stripFences(content)), &steps); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("planner returned an empty plan")
	}
	return steps, nil
}

// Decide picks the next action: the first pending step if any; a fresh
// search keyword while sources are below target; otherwise the report
// sentinel. A nil action means there is nothing left to do.
func (a *LLMAdvisor) Decide(ctx context.Context, state store.Run) (*Action, error) {
	pending := state.PendingSteps()
	if len(pending) > 0 {
		next := pending[0]
		return &Action{
			Tool:   next.Tool,
			Input:  next.Input,
			StepID: next.ID,
			Reason: next.Title,
		}, nil
	}

	if len(state.Sources()) < a.SourceTarget {
		keyword, err := a.freshKeyword(ctx, state.Goal, state.Memory.KeywordsTried)
		if err != nil || keyword == "" {
			// Out of ideas: let the loop move on with what it has.
			return nil, nil
		}
		return &Action{
			Tool:   "browser.search",
			Input:  keyword,
			Reason: "searching for more sources with: " + keyword,
		}, nil
	}

	return &Action{
		Tool:   ToolGenerateReport,
		Input:  state.Goal,
		Reason: "enough sources collected, generating report",
	}, nil
}

func (a *LLMAdvisor) freshKeyword(ctx context.Context, goal string, tried []string) (string, error) {
	prompt := fmt.Sprintf(`Goal: %s
Keywords already tried: %s

Produce one new search keyword phrase, from a different angle, to find more relevant material.
Reply with the keywords only, nothing else.`, goal, strings.Join(tried, ", "))

	keyword, err := a.chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.Trim(keyword, `"`), nil
}

// Report generates the final report, picking a structure that matches
// the classified content type.
func (a *LLMAdvisor) Report(ctx context.Context, goal string, sources []store.Source, contents []string) (string, error) {
	contentType := a.classifyContent(ctx, goal, contents)

	var sourceLines []string
	for _, s := range sources {
		sourceLines = append(sourceLines, fmt.Sprintf("- %s: %s", s.Title, s.URL))
	}

	body := strings.Join(firstN(contents, 5), "\n\n---\n\n")
	if len(body) > 8000 {
		body = body[:8000]
	}

	prompt := fmt.Sprintf(`Goal: %s
Content type: %s

Collected sources:
%s

Content digest:
%s

Write a %s based on the material above.

Requirements:
1. Markdown with "## " section headings, including a "## Summary" section and a closing "## Sources" section listing every source.
2. More than 1000 words with real depth, not generalities.
3. Use lists, tables and code blocks where the content type calls for them.
4. Attribute claims to their sources.`,
		goal, contentType, strings.Join(sourceLines, "\n"), body, typeDescription(contentType))

	report, err := a.chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	return stripFences(report), nil
}

var contentTypes = []string{"tutorial", "comparison", "report", "reference", "list", "overview"}

// classifyContent asks the model which report structure fits, falling
// back to goal keywords when the call fails.
func (a *LLMAdvisor) classifyContent(ctx context.Context, goal string, contents []string) string {
	preview := strings.Join(firstN(contents, 3), "\n")
	if len(preview) > 2000 {
		preview = preview[:2000]
	}

	prompt := fmt.Sprintf(`Classify the best report type for this research.

Goal: %s

Content preview:
%s

Types: tutorial (step-by-step with code), comparison (options side by side), report (in-depth analysis), reference (API/spec docs), list (rankings, recommendations), overview (introductions).

Reply with the type id only.`, goal, preview)

	if result, err := a.chat(ctx, prompt); err == nil {
		result = strings.ToLower(strings.TrimSpace(result))
		for _, t := range contentTypes {
			if result == t {
				return t
			}
		}
	}

	return fallbackContentType(goal)
}

func fallbackContentType(goal string) string {
	lower := strings.ToLower(goal)
	switch {
	case containsAny(lower, "how to", "tutorial", "guide", "step"):
		return "tutorial"
	case containsAny(lower, " vs ", "versus", "compare", "comparison", "difference"):
		return "comparison"
	case containsAny(lower, "api", "reference", "spec", "documentation"):
		return "reference"
	case containsAny(lower, "best", "top ", "recommend", "list of"):
		return "list"
	case containsAny(lower, "what is", "intro", "overview", "basics"):
		return "overview"
	}
	return "report"
}

func typeDescription(contentType string) string {
	descriptions := map[string]string{
		"tutorial":   "practical tutorial article",
		"comparison": "in-depth comparative analysis",
		"report":     "research report",
		"reference":  "technical reference document",
		"list":       "curated list",
		"overview":   "introductory overview article",
	}
	if d, ok := descriptions[contentType]; ok {
		return d
	}
	return "research report"
}

// stripFences removes a markdown code fence wrapper from a model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
