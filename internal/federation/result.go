package federation

import (
	"fmt"

	"github.com/andywolf/federator/internal/github"
)

// Outcome is the terminal state a federation run ended in.
type Outcome string

const (
	// OutcomeNoIssue means the event carried no issue payload.
	OutcomeNoIssue Outcome = "no-issue"
	// OutcomeGated means the issue lacks the required label.
	OutcomeGated Outcome = "gated"
	// OutcomeDenied means the actor is not authorized to trigger federation.
	OutcomeDenied Outcome = "denied"
	// OutcomeNoTargets means no selector matched any repository.
	OutcomeNoTargets Outcome = "no-targets"
	// OutcomeIgnoredAction means the event action does not drive federation.
	OutcomeIgnoredAction Outcome = "ignored-action"
	// OutcomeCloseDisabled means a close event arrived with close
	// propagation disabled.
	OutcomeCloseDisabled Outcome = "close-propagation-disabled"
	// OutcomeCompleted means the per-target fan-out ran; individual targets
	// may still have failed.
	OutcomeCompleted Outcome = "completed"
)

// Operation phases recorded per target.
const (
	PhaseCreate = "create"
	PhaseLink   = "link"
	PhaseUpdate = "update"
	PhaseClose  = "close"
)

// TargetResult is the outcome of one per-repository operation. A nil Err
// means the operation succeeded.
type TargetResult struct {
	Repo  string
	Issue int
	Phase string
	Err   error
}

// Failed reports whether this target's operation failed.
func (r TargetResult) Failed() bool {
	return r.Err != nil
}

func (r TargetResult) String() string {
	ref := r.Repo
	if r.Issue != 0 {
		ref = fmt.Sprintf("%s#%d", r.Repo, r.Issue)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %v", r.Phase, ref, r.Err)
	}
	return fmt.Sprintf("%s %s: ok", r.Phase, ref)
}

// RunReport aggregates the per-target outcomes of a single federation run.
// The run as a whole completes successfully even when individual targets
// fail; callers inspect Results for partial failures.
type RunReport struct {
	RunID   string
	Outcome Outcome
	Results []TargetResult

	// Orphans are child issues whose create succeeded but whose link step
	// failed. They exist remotely but are unreachable from the parent's
	// sub-issue graph on subsequent edit/close runs.
	Orphans []github.IssueRef
}

func (r *RunReport) add(res TargetResult) {
	r.Results = append(r.Results, res)
}

// Failures returns the results whose operation failed.
func (r *RunReport) Failures() []TargetResult {
	var failed []TargetResult
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}
