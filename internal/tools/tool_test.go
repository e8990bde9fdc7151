package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		res       Result
		ok        bool
		retryable bool
	}{
		{"explicit error marker", Errf(KindText, "boom"), false, false},
		{"empty hit list is retryable", Result{Kind: KindHits, Hits: []Hit{}}, false, true},
		{"first hit carries error", Result{Kind: KindHits, Hits: []Hit{{Err: "blocked"}}}, false, false},
		{"good hits", Result{Kind: KindHits, Hits: []Hit{{Title: "t", URL: "https://x.example"}}}, true, false},
		{"plain text", Result{Kind: KindText, Output: "done"}, true, false},
		{"page", Result{Kind: KindPage, Page: &Page{URL: "https://x.example"}}, true, false},
		{"content", Result{Kind: KindContent, Content: &Extract{Content: "body"}}, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, retryable := Classify(tc.res)
			if ok != tc.ok || retryable != tc.retryable {
				t.Errorf("Classify = (%v, %v), want (%v, %v)", ok, retryable, tc.ok, tc.retryable)
			}
		})
	}
}

type staticTool struct {
	name string
	res  Result
}

func (s staticTool) Name() string                                  { return s.name }
func (s staticTool) Description() string                           { return "static" }
func (s staticTool) Execute(ctx context.Context, in string) Result { return s.res }

type panicTool struct{}

func (panicTool) Name() string                                  { return "panic" }
func (panicTool) Description() string                           { return "always panics" }
func (panicTool) Execute(ctx context.Context, in string) Result { panic("kaboom") }

func TestRegistryExecute_UnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", "")
	if res.Err == "" || !strings.Contains(res.Err, "unknown tool") {
		t.Errorf("unknown tool should be a normalized failure: %+v", res)
	}
}

func TestRegistryExecute_PanicNormalized(t *testing.T) {
	r := NewRegistry()
	r.Register(panicTool{})

	res := r.Execute(context.Background(), "panic", "")
	if res.Err == "" || !strings.Contains(res.Err, "kaboom") {
		t.Errorf("panic should surface as failure result: %+v", res)
	}
}

func TestRegistryExecute_Dispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(staticTool{name: "echo", res: Result{Kind: KindText, Output: "hi"}})

	res := r.Execute(context.Background(), "echo", "")
	if res.Output != "hi" {
		t.Errorf("got %+v", res)
	}
}

func TestFileWriteTool(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	res := tool.Execute(context.Background(), "notes/summary.md|# Findings")
	if res.Err != "" {
		t.Fatalf("write failed: %s", res.Err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes", "summary.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Findings" {
		t.Errorf("content = %q", data)
	}
}

func TestFileWriteTool_RejectsEscape(t *testing.T) {
	tool := NewFileWriteTool(t.TempDir())
	res := tool.Execute(context.Background(), "../outside.txt|x")
	if res.Err == "" || !strings.Contains(res.Err, "unsafe path") {
		t.Errorf("path escape should fail: %+v", res)
	}
}

func TestFileWriteTool_BadInput(t *testing.T) {
	tool := NewFileWriteTool(t.TempDir())
	if res := tool.Execute(context.Background(), "no-separator"); res.Err == "" {
		t.Error("missing separator should fail")
	}
}

func TestCodeTool(t *testing.T) {
	tool := NewCodeTool(t.TempDir())

	res := tool.Execute(context.Background(), "echo hello")
	if res.Err != "" || res.Output != "hello" {
		t.Errorf("got %+v", res)
	}

	res = tool.Execute(context.Background(), "exit 3")
	if res.Err == "" {
		t.Errorf("non-zero exit should carry an error marker: %+v", res)
	}
}

func TestResolveRedirect(t *testing.T) {
	cases := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog&rut=abc": "https://go.dev/blog",
		"https://example.com/direct":                                   "https://example.com/direct",
		"":                                                             "",
	}
	for in, want := range cases {
		if got := resolveRedirect(in); got != want {
			t.Errorf("resolveRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummaryTruncatesNothing(t *testing.T) {
	res := Result{Kind: KindHits, Hits: []Hit{{Title: "A"}, {Title: "B"}}}
	if got := res.Summary(); !strings.HasPrefix(got, "2 results") {
		t.Errorf("Summary = %q", got)
	}
}
