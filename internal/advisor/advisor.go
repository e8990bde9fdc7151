// Package advisor defines the decision-making collaborator the loop
// consults. The advisor's reasoning is opaque and non-deterministic;
// the loop depends only on this contract.
package advisor

import (
	"context"

	"github.com/nkapoor/ferret/internal/store"
)

// ToolGenerateReport is the sentinel action: the run has gathered
// enough and should move to report synthesis.
const ToolGenerateReport = "generate_report"

// PlannedStep is one entry of an initial plan.
type PlannedStep struct {
	Title string `json:"title"`
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

// Action is the advisor's next move. StepID is non-zero when the action
// executes an already-planned step.
type Action struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	StepID int    `json:"step_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Advisor supplies the initial plan, per-iteration decisions, and the
// final report text.
type Advisor interface {
	// Plan returns the ordered initial steps for a goal.
	Plan(ctx context.Context, goal string) ([]PlannedStep, error)

	// Decide returns the next action for the current state, or nil
	// when no further action is needed.
	Decide(ctx context.Context, state store.Run) (*Action, error)

	// Report synthesizes the final report from sources and collected
	// content.
	Report(ctx context.Context, goal string, sources []store.Source, contents []string) (string, error)
}
