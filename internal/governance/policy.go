// Package governance screens tool invocations before the loop executes
// them. A denied call is surfaced to the loop as a normalized tool
// failure, never as a fault.
package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect is the outcome of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request carries the tool call under evaluation.
type Request struct {
	Tool  string
	Input string
	RunID string
}

// Result is the policy verdict.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a rule set.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// RulePolicyEngine denies by tool name or by input pattern and allows
// everything else.
type RulePolicyEngine struct {
	DeniedTools map[string]bool
	DeniedInput []*regexp.Regexp
}

func NewRulePolicyEngine() *RulePolicyEngine {
	return &RulePolicyEngine{
		DeniedTools: make(map[string]bool),
	}
}

// NewDefaultPolicyEngine applies the stock safety rules: destructive
// shell commands are blocked before code.run ever sees them.
func NewDefaultPolicyEngine() *RulePolicyEngine {
	e := NewRulePolicyEngine()
	_ = e.DenyInput(`rm\s+-rf`)
	_ = e.DenyInput(`mkfs`)
	_ = e.DenyInput(`shutdown`)
	_ = e.DenyInput(`reboot`)
	return e
}

func (e *RulePolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

func (e *RulePolicyEngine) DenyInput(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedInput = append(e.DeniedInput, re)
	return nil
}

func (e *RulePolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("tool '%s' is restricted by policy", req.Tool),
		}, nil
	}

	for _, re := range e.DeniedInput {
		if re.MatchString(req.Input) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("input matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{Effect: EffectAllow, Reason: "approved by default policy"}, nil
}
