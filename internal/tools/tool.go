// Package tools is the adapter layer between the orchestration loop and
// the external tools it drives. Expected failures (timeouts, not-found,
// bad input) are normalized into the Result value; the loop never sees
// a raised fault from a tool call.
package tools

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Kind tags which payload a Result carries.
type Kind int

const (
	KindText Kind = iota
	KindHits
	KindPage
	KindContent
)

// Hit is one search result. Err is set instead of the other fields when
// the search backend itself failed mid-flight.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Err     string `json:"error,omitempty"`
}

// Page describes a navigation outcome.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Extract is the readable content pulled from the current page.
type Extract struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Result is the uniform tool outcome. Exactly one payload field is
// meaningful, selected by Kind; Err marks a normalized failure.
type Result struct {
	Kind    Kind
	Err     string
	Hits    []Hit
	Page    *Page
	Content *Extract
	Output  string
}

// Errf builds a normalized failure result.
func Errf(kind Kind, format string, args ...any) Result {
	return Result{Kind: kind, Err: fmt.Sprintf(format, args...)}
}

// Classify is the fast-path success heuristic: a cheap syntactic check,
// not semantic validation. A result fails iff it carries an explicit
// error marker, is an empty hit list, or its first hit carries an error
// marker. An empty hit list is the one retryable failure: the step
// stays eligible for re-decision instead of being marked failed.
func Classify(res Result) (ok, retryable bool) {
	if res.Err != "" {
		return false, false
	}
	if res.Kind == KindHits {
		if len(res.Hits) == 0 {
			return false, true
		}
		if res.Hits[0].Err != "" {
			return false, false
		}
	}
	return true, false
}

// Summary renders a result as a short observation string for step
// output and logging.
func (r Result) Summary() string {
	if r.Err != "" {
		return "error: " + r.Err
	}
	switch r.Kind {
	case KindHits:
		titles := make([]string, 0, len(r.Hits))
		for _, h := range r.Hits {
			titles = append(titles, h.Title)
		}
		return fmt.Sprintf("%d results: %s", len(r.Hits), strings.Join(titles, "; "))
	case KindPage:
		if r.Page == nil {
			return "opened page"
		}
		return fmt.Sprintf("opened %s (%s)", r.Page.URL, r.Page.Title)
	case KindContent:
		if r.Content == nil {
			return "extracted nothing"
		}
		return fmt.Sprintf("extracted %d chars from %s", len(r.Content.Content), r.Content.URL)
	default:
		return r.Output
	}
}

// Tool is one agent capability.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) Result
}

// Registry is the single entry point the loop invokes tools through.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{Tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Describe lists registered tools for the advisor's prompt.
func (r *Registry) Describe() []string {
	var out []string
	for _, t := range r.Tools {
		out = append(out, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}
	return out
}

// Execute dispatches to the named tool, normalizing an unknown tool and
// any panic into a failure result so one bad call can never take the
// loop down.
func (r *Registry) Execute(ctx context.Context, name, input string) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Errf(KindText, "tool %s panicked: %v", name, rec)
		}
	}()

	tool := r.Get(name)
	if tool == nil {
		return Errf(KindText, "unknown tool: %s", name)
	}
	return tool.Execute(ctx, input)
}

// Close releases every registered tool that holds external resources.
func (r *Registry) Close() error {
	var firstErr error
	for _, t := range r.Tools {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
