// Package verify holds the rule engine that issues the final pass/fail
// verdict over a completed run. Rules are independent, pure checks over
// the run state and the report text; all of them always execute so the
// full diagnostic set is available even after an early failure.
package verify

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/nkapoor/ferret/internal/store"
)

// Rule is one named check. Rules must not mutate their inputs.
type Rule struct {
	Name  string
	Check func(run store.Run, report string) (bool, string)
}

// RuleResult is the outcome of a single rule.
type RuleResult struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Report aggregates all rule results. Passed is the AND of every rule.
type Report struct {
	Passed  bool         `json:"passed"`
	Results []RuleResult `json:"results"`
}

// Engine runs a fixed rule set against a finished run.
type Engine struct {
	MinSources   int
	MinWordCount int
	rules        []Rule
}

// NewEngine builds an engine with the default rule set.
func NewEngine(minSources, minWordCount int) *Engine {
	e := &Engine{
		MinSources:   minSources,
		MinWordCount: minWordCount,
	}
	e.rules = []Rule{
		{"min_sources", e.hasMinSources},
		{"sources_complete", e.sourcesHaveURLAndTitle},
		{"report_exists", e.reportExists},
		{"report_sections", e.reportHasSections},
		{"domain_diversity", e.notAllFromSameDomain},
		{"min_length", e.hasMinLength},
	}
	return e
}

// Verify evaluates every rule. A panicking rule is downgraded to a
// failed result carrying the panic text; it never aborts the rest.
func (e *Engine) Verify(run store.Run, report string) Report {
	results := make([]RuleResult, 0, len(e.rules))
	passed := true

	for _, rule := range e.rules {
		ok, message := e.runRule(rule, run, report)
		results = append(results, RuleResult{
			Rule:    rule.Name,
			Passed:  ok,
			Message: message,
		})
		passed = passed && ok
	}

	return Report{Passed: passed, Results: results}
}

func (e *Engine) runRule(rule Rule, run store.Run, report string) (ok bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			message = fmt.Sprintf("Error: %v", r)
		}
	}()
	return rule.Check(run, report)
}

func (e *Engine) hasMinSources(run store.Run, report string) (bool, string) {
	count := len(run.Sources())
	return count >= e.MinSources, fmt.Sprintf("Sources: %d/%d", count, e.MinSources)
}

func (e *Engine) sourcesHaveURLAndTitle(run store.Run, report string) (bool, string) {
	sources := run.Sources()
	if len(sources) == 0 {
		return false, "No sources found"
	}

	var invalid []int
	for i, src := range sources {
		if src.URL == "" || src.Title == "" {
			invalid = append(invalid, i+1)
		}
	}
	if len(invalid) > 0 {
		return false, fmt.Sprintf("Sources missing url/title: %v", invalid)
	}
	return true, "All sources have url and title"
}

func (e *Engine) reportExists(run store.Run, report string) (bool, string) {
	if strings.TrimSpace(report) != "" {
		return true, "Report exists"
	}
	return false, "Report is empty or missing"
}

func (e *Engine) reportHasSections(run store.Run, report string) (bool, string) {
	requiredSections := []string{"##", "Summary", "Sources"}

	if report == "" {
		return false, "No report content"
	}

	var missing []string
	for _, section := range requiredSections {
		if !strings.Contains(report, section) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("Missing sections: %v", missing)
	}
	return true, "All required sections present"
}

func (e *Engine) notAllFromSameDomain(run store.Run, report string) (bool, string) {
	sources := run.Sources()
	if len(sources) < 2 {
		return true, "Not enough sources to check diversity"
	}

	hosts := make([]string, 0, len(sources))
	counts := map[string]int{}
	for _, src := range sources {
		u, err := url.Parse(src.URL)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.TrimPrefix(u.Host, "www.")
		hosts = append(hosts, host)
		counts[host]++
	}

	if len(counts) < 2 {
		var only []string
		for host := range counts {
			only = append(only, host)
		}
		return false, fmt.Sprintf("All sources from same domain: %v", only)
	}

	total := len(hosts)
	for host, count := range counts {
		if float64(count)/float64(total) > 0.7 {
			return false, fmt.Sprintf("Domain '%s' represents %d/%d sources", host, count, total)
		}
	}

	return true, fmt.Sprintf("Sources from %d different domains", len(counts))
}

func (e *Engine) hasMinLength(run store.Run, report string) (bool, string) {
	if report == "" {
		return false, "No report content"
	}
	count := utf8.RuneCountInString(report)
	if count >= e.MinWordCount {
		return true, fmt.Sprintf("Word count: %d/%d", count, e.MinWordCount)
	}
	return false, fmt.Sprintf("Word count too low: %d/%d", count, e.MinWordCount)
}
