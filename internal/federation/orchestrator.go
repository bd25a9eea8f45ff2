// Package federation drives the parent-to-child issue propagation: label
// gate, policy load, permission check, target resolution and the per-target
// create/update/close fan-out with partial-failure isolation.
package federation

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/andywolf/federator/internal/event"
	"github.com/andywolf/federator/internal/github"
	"github.com/andywolf/federator/internal/policy"
	"github.com/andywolf/federator/internal/template"
)

// Options is the runtime configuration for a federation run.
type Options struct {
	RequiredLabel            string
	ConfigPath               string
	ConfigRef                string
	NotifyMissingPermissions bool
	CloseIssuesOnParentClose bool
	TitleTemplate            string
	BodyTemplate             string
}

// IssueService is the issue read/write surface the orchestrator drives.
// *github.Client satisfies it.
type IssueService interface {
	CreateIssue(ctx context.Context, owner, repo string, content github.IssueContent) (github.IssueRef, error)
	UpdateIssue(ctx context.Context, ref github.IssueRef, content github.IssueContent) error
	SetIssueState(ctx context.Context, ref github.IssueRef, open bool) error
	PostComment(ctx context.Context, ref github.IssueRef, body string) error
	IssueNodeID(ctx context.Context, ref github.IssueRef) (string, error)
	LinkedChildren(ctx context.Context, parentNodeID string) ([]github.IssueRef, error)
	LinkSubIssue(ctx context.Context, parentNodeID, childNodeID string) error
}

// RepositoryLister lists an organization's repositories for name-pattern
// selectors.
type RepositoryLister interface {
	ListRepositories(ctx context.Context, owner string) ([]github.Repository, error)
}

// TeamService looks up team membership for the permission evaluator.
type TeamService interface {
	TeamMembership(ctx context.Context, org, teamSlug, user string) (string, error)
}

// Services bundles the collaborators a run needs. In production all four are
// the same *github.Client; tests substitute fakes per concern.
type Services struct {
	Issues IssueService
	Repos  RepositoryLister
	Teams  TeamService
	Config policy.Source
}

// CloudLogger mirrors the structured cloud logging surface. It is optional;
// a nil logger disables cloud mirroring.
type CloudLogger interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// Orchestrator executes one federation run per triggering event. It keeps no
// state between runs: authorization, target resolution and the linked-child
// set are recomputed from the remote graph every time.
type Orchestrator struct {
	opts        Options
	svc         Services
	runID       string
	logger      *log.Logger
	cloudLogger CloudLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom local logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithCloudLogger mirrors run logs to a cloud logger.
func WithCloudLogger(cl CloudLogger) Option {
	return func(o *Orchestrator) {
		o.cloudLogger = cl
	}
}

// WithRunID sets the run correlation ID included in the report.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// New creates an Orchestrator.
func New(opts Options, svc Services, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:   opts,
		svc:    svc,
		logger: log.New(os.Stdout, "[federator] ", log.LstdFlags),
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

func (o *Orchestrator) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Printf("%s", msg)
	if o.cloudLogger != nil {
		o.cloudLogger.Info(msg)
	}
}

func (o *Orchestrator) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Printf("Warning: %s", msg)
	if o.cloudLogger != nil {
		o.cloudLogger.Warning(msg)
	}
}

func (o *Orchestrator) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Printf("Error: %s", msg)
	if o.cloudLogger != nil {
		o.cloudLogger.Error(msg)
	}
}

// Run processes a single triggering event. It returns an error only for
// fatal, run-aborting conditions (policy document problems, unsupported
// selectors, parent graph lookups); per-target failures are recorded in the
// report and logged, never propagated.
func (o *Orchestrator) Run(ctx context.Context, ev *event.IssueEvent) (*RunReport, error) {
	report := &RunReport{RunID: o.runID}

	if ev.Issue == nil {
		o.logInfo("Event carries no issue payload, nothing to do")
		report.Outcome = OutcomeNoIssue
		return report, nil
	}

	owner := ev.Repository.Owner.Login
	repo := ev.Repository.Name

	if !ev.HasLabel(o.opts.RequiredLabel) {
		o.logInfo("Issue %s/%s#%d lacks the %q label, nothing to do",
			owner, repo, ev.Issue.Number, o.opts.RequiredLabel)
		report.Outcome = OutcomeGated
		return report, nil
	}

	pol, err := policy.Load(ctx, o.svc.Config, owner, repo, o.opts.ConfigPath, o.opts.ConfigRef)
	if err != nil {
		return nil, err
	}

	actor := ev.Actor()
	if !policy.Authorize(ctx, pol, actor, owner, o.svc.Teams.TeamMembership) {
		o.logWarning("User %s is not allowed to trigger federation for %s/%s#%d",
			actor, owner, repo, ev.Issue.Number)
		if o.opts.NotifyMissingPermissions {
			o.notifyDenied(ctx, ev, actor)
		}
		report.Outcome = OutcomeDenied
		return report, nil
	}

	targets, err := policy.ResolveTargets(ctx, pol.TargetRepositorySelectors, owner, o.svc.Repos.ListRepositories)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		o.logWarning("No target repositories resolved for %s/%s#%d", owner, repo, ev.Issue.Number)
		report.Outcome = OutcomeNoTargets
		return report, nil
	}

	switch ev.Action {
	case event.ActionLabeled:
		return report, o.handleLabeled(ctx, ev, targets, report)
	case event.ActionEdited:
		return report, o.handleEdited(ctx, ev, targets, report)
	case event.ActionClosed:
		if !o.opts.CloseIssuesOnParentClose {
			o.logInfo("Close propagation is disabled, leaving child issues open")
			report.Outcome = OutcomeCloseDisabled
			return report, nil
		}
		return report, o.handleClosed(ctx, ev, targets, report)
	default:
		o.logInfo("Ignoring issue event action %q", ev.Action)
		report.Outcome = OutcomeIgnoredAction
		return report, nil
	}
}

// parentRef builds the handle for the parent issue from the event.
func parentRef(ev *event.IssueEvent) github.IssueRef {
	return github.IssueRef{
		Owner:  ev.Repository.Owner.Login,
		Repo:   ev.Repository.Name,
		Number: ev.Issue.Number,
		NodeID: ev.Issue.NodeID,
	}
}

// renderContent applies the child title/body templates to the parent's
// current content. Parent labels carry over unchanged.
func (o *Orchestrator) renderContent(issue *event.Issue) github.IssueContent {
	values := template.ContentValues(issue.Title, issue.Body)
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.Name)
	}
	return github.IssueContent{
		Title:  template.Render(o.opts.TitleTemplate, values),
		Body:   template.Render(o.opts.BodyTemplate, values),
		Labels: labels,
	}
}

// sortedNames returns the target repository names in deterministic order.
// Result ordering is not significant for correctness, but stable iteration
// keeps logs and reports reproducible.
func sortedNames(targets map[string]github.Repository) []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handleLabeled creates a child issue in every target repository and links
// each to the parent as a tracked sub-issue. Each target's create+link pair
// is isolated: a failure is recorded and the remaining targets still run. A
// child whose create succeeded but whose link failed is an orphan; it is
// reported but not retried.
func (o *Orchestrator) handleLabeled(ctx context.Context, ev *event.IssueEvent, targets map[string]github.Repository, report *RunReport) error {
	parent := parentRef(ev)
	parentNode, err := o.svc.Issues.IssueNodeID(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to resolve parent issue node: %w", err)
	}

	content := o.renderContent(ev.Issue)

	for _, name := range sortedNames(targets) {
		target := targets[name]

		child, err := o.svc.Issues.CreateIssue(ctx, target.Owner, target.Name, content)
		if err != nil {
			o.logError("Failed to create child issue in %s/%s: %v", target.Owner, target.Name, err)
			report.add(TargetResult{Repo: name, Phase: PhaseCreate, Err: err})
			continue
		}

		childNode := child.NodeID
		if childNode == "" {
			childNode, err = o.svc.Issues.IssueNodeID(ctx, child)
		}
		if err == nil {
			err = o.svc.Issues.LinkSubIssue(ctx, parentNode, childNode)
		}
		if err != nil {
			// The child exists remotely but the parent->child edge was never
			// established, so later edit/close runs will not see it.
			o.logError("Created child issue %s/%s#%d but failed to link it to %s/%s#%d: %v",
				child.Owner, child.Repo, child.Number, parent.Owner, parent.Repo, parent.Number, err)
			report.Orphans = append(report.Orphans, child)
			report.add(TargetResult{Repo: name, Issue: child.Number, Phase: PhaseLink, Err: err})
			continue
		}

		o.logInfo("Created and linked child issue %s/%s#%d", child.Owner, child.Repo, child.Number)
		report.add(TargetResult{Repo: name, Issue: child.Number, Phase: PhaseCreate})
	}

	report.Outcome = OutcomeCompleted
	return nil
}

// handleEdited pushes the parent's updated content to every linked child
// whose repository is still among the resolved targets. The child set is
// queried fresh from the issue graph, never cached.
func (o *Orchestrator) handleEdited(ctx context.Context, ev *event.IssueEvent, targets map[string]github.Repository, report *RunReport) error {
	children, err := o.linkedChildren(ctx, ev)
	if err != nil {
		return err
	}

	content := o.renderContent(ev.Issue)

	for _, child := range children {
		if _, ok := targets[child.Repo]; !ok {
			o.logInfo("Skipping %s/%s#%d: repository is no longer a federation target",
				child.Owner, child.Repo, child.Number)
			continue
		}

		if err := o.svc.Issues.UpdateIssue(ctx, child, content); err != nil {
			o.logWarning("Failed to update child issue %s/%s#%d: %v",
				child.Owner, child.Repo, child.Number, err)
			report.add(TargetResult{Repo: child.Repo, Issue: child.Number, Phase: PhaseUpdate, Err: err})
			continue
		}

		o.logInfo("Updated child issue %s/%s#%d", child.Owner, child.Repo, child.Number)
		report.add(TargetResult{Repo: child.Repo, Issue: child.Number, Phase: PhaseUpdate})
	}

	report.Outcome = OutcomeCompleted
	return nil
}

// handleClosed closes every linked child in a still-selected repository.
func (o *Orchestrator) handleClosed(ctx context.Context, ev *event.IssueEvent, targets map[string]github.Repository, report *RunReport) error {
	children, err := o.linkedChildren(ctx, ev)
	if err != nil {
		return err
	}

	for _, child := range children {
		if _, ok := targets[child.Repo]; !ok {
			o.logInfo("Skipping %s/%s#%d: repository is no longer a federation target",
				child.Owner, child.Repo, child.Number)
			continue
		}

		if err := o.svc.Issues.SetIssueState(ctx, child, false); err != nil {
			o.logWarning("Failed to close child issue %s/%s#%d: %v",
				child.Owner, child.Repo, child.Number, err)
			report.add(TargetResult{Repo: child.Repo, Issue: child.Number, Phase: PhaseClose, Err: err})
			continue
		}

		o.logInfo("Closed child issue %s/%s#%d", child.Owner, child.Repo, child.Number)
		report.add(TargetResult{Repo: child.Repo, Issue: child.Number, Phase: PhaseClose})
	}

	report.Outcome = OutcomeCompleted
	return nil
}

// linkedChildren fetches the parent's current sub-issue set from the remote
// graph.
func (o *Orchestrator) linkedChildren(ctx context.Context, ev *event.IssueEvent) ([]github.IssueRef, error) {
	parent := parentRef(ev)
	parentNode, err := o.svc.Issues.IssueNodeID(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent issue node: %w", err)
	}

	children, err := o.svc.Issues.LinkedChildren(ctx, parentNode)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch linked child issues: %w", err)
	}
	return children, nil
}

// notifyDenied posts the missing-permission comment on the parent issue.
// A failed notification is logged and otherwise ignored.
func (o *Orchestrator) notifyDenied(ctx context.Context, ev *event.IssueEvent, actor string) {
	body := fmt.Sprintf("@%s you do not have permission to trigger issue federation. "+
		"Ask an administrator to add you to the allow-list in `%s`.", actor, o.opts.ConfigPath)

	if err := o.svc.Issues.PostComment(ctx, parentRef(ev), body); err != nil {
		o.logWarning("Failed to post missing-permission comment: %v", err)
	}
}
