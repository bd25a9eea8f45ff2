package federation

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/andywolf/federator/internal/event"
	"github.com/andywolf/federator/internal/github"
)

// fakeIssues records issue operations and serves a configurable sub-issue
// graph.
type fakeIssues struct {
	created  []github.IssueRef
	updated  []github.IssueRef
	closed   []github.IssueRef
	comments []string
	linked   [][2]string

	children   []github.IssueRef
	nextNumber int

	failCreateIn map[string]bool
	failLinkFor  map[string]bool
	failUpdate   map[string]bool
	failClose    map[string]bool

	childrenCalls int
}

func (f *fakeIssues) CreateIssue(ctx context.Context, owner, repo string, content github.IssueContent) (github.IssueRef, error) {
	if f.failCreateIn[repo] {
		return github.IssueRef{}, fmt.Errorf("create failed")
	}
	f.nextNumber++
	ref := github.IssueRef{
		Owner:  owner,
		Repo:   repo,
		Number: f.nextNumber,
		NodeID: fmt.Sprintf("node-%s-%d", repo, f.nextNumber),
	}
	f.created = append(f.created, ref)
	return ref, nil
}

func (f *fakeIssues) UpdateIssue(ctx context.Context, ref github.IssueRef, content github.IssueContent) error {
	if f.failUpdate[ref.Repo] {
		return fmt.Errorf("update failed")
	}
	f.updated = append(f.updated, ref)
	return nil
}

func (f *fakeIssues) SetIssueState(ctx context.Context, ref github.IssueRef, open bool) error {
	if f.failClose[ref.Repo] {
		return fmt.Errorf("close failed")
	}
	if !open {
		f.closed = append(f.closed, ref)
	}
	return nil
}

func (f *fakeIssues) PostComment(ctx context.Context, ref github.IssueRef, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeIssues) IssueNodeID(ctx context.Context, ref github.IssueRef) (string, error) {
	if ref.NodeID != "" {
		return ref.NodeID, nil
	}
	return fmt.Sprintf("node-%s-%d", ref.Repo, ref.Number), nil
}

func (f *fakeIssues) LinkedChildren(ctx context.Context, parentNodeID string) ([]github.IssueRef, error) {
	f.childrenCalls++
	return f.children, nil
}

func (f *fakeIssues) LinkSubIssue(ctx context.Context, parentNodeID, childNodeID string) error {
	for repo := range f.failLinkFor {
		if strings.Contains(childNodeID, repo) {
			return fmt.Errorf("link failed")
		}
	}
	f.linked = append(f.linked, [2]string{parentNodeID, childNodeID})
	return nil
}

type fakeRepos struct {
	repos []github.Repository
	calls int
}

func (f *fakeRepos) ListRepositories(ctx context.Context, owner string) ([]github.Repository, error) {
	f.calls++
	return f.repos, nil
}

type fakeTeams struct {
	members map[string]string
}

func (f *fakeTeams) TeamMembership(ctx context.Context, org, teamSlug, user string) (string, error) {
	state, ok := f.members[fmt.Sprintf("%s/%s/%s", org, teamSlug, user)]
	if !ok {
		return "", fmt.Errorf("membership: %w", github.ErrNotFound)
	}
	return state, nil
}

type fakeConfig struct {
	doc string
}

func (f *fakeConfig) FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	if f.doc == "" {
		return nil, fmt.Errorf("contents %s: %w", path, github.ErrNotFound)
	}
	return []byte(f.doc), nil
}

const openPolicyTwoTargets = `{
	"allowed": {},
	"targetRepositorySelectors": [
		{"method": "explicit", "repositories": ["service-auth", "service-billing"]}
	]
}`

func testEvent(action string) *event.IssueEvent {
	return &event.IssueEvent{
		Action: action,
		Issue: &event.Issue{
			Number: 7,
			NodeID: "node-tracker-7",
			Title:  "Upgrade TLS stack",
			Body:   "All services must move to TLS 1.3.",
			State:  "open",
			Labels: []event.Label{{Name: "federated"}, {Name: "security"}},
			User:   event.User{Login: "octocat"},
		},
		Repository: event.Repository{
			Name:     "tracker",
			FullName: "acme/tracker",
			Owner:    event.User{Login: "acme"},
		},
		Sender: event.User{Login: "octocat"},
	}
}

func testOrchestrator(issues *fakeIssues, cfg *fakeConfig, opts Options) *Orchestrator {
	if opts.RequiredLabel == "" {
		opts.RequiredLabel = "federated"
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = ".github/federated-issue-action-config.json"
	}
	if opts.TitleTemplate == "" {
		opts.TitleTemplate = "{{title}}"
	}
	if opts.BodyTemplate == "" {
		opts.BodyTemplate = "{{body}}"
	}

	svc := Services{
		Issues: issues,
		Repos:  &fakeRepos{},
		Teams:  &fakeTeams{},
		Config: cfg,
	}
	return New(opts, svc, WithRunID("test-run"), WithLogger(log.New(io.Discard, "", 0)))
}

func TestRunLabeledCreatesAndLinksChildren(t *testing.T) {
	issues := &fakeIssues{}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeCompleted)
	}
	if len(issues.created) != 2 {
		t.Fatalf("expected 2 created issues, got %d", len(issues.created))
	}
	if len(issues.linked) != 2 {
		t.Fatalf("expected 2 linked issues, got %d", len(issues.linked))
	}
	for _, link := range issues.linked {
		if link[0] != "node-tracker-7" {
			t.Errorf("linked to parent %q, want node-tracker-7", link[0])
		}
	}
	if issues.created[0].Repo != "service-auth" || issues.created[1].Repo != "service-billing" {
		t.Errorf("creation order not deterministic: %v", issues.created)
	}
	if failures := report.Failures(); len(failures) != 0 {
		t.Errorf("unexpected failures: %v", failures)
	}
}

func TestRunLabeledRendersTemplates(t *testing.T) {
	issues := &fakeIssues{}
	var captured github.IssueContent
	orch := testOrchestrator(issues, &fakeConfig{doc: `{
		"targetRepositorySelectors": [{"method": "explicit", "repositories": ["docs"]}]
	}`}, Options{
		TitleTemplate: "[federated] {{title}}",
		BodyTemplate:  "Tracking issue: {{title}}\n\n{{body}}",
	})

	// Wrap CreateIssue to capture the rendered content.
	svc := orch.svc
	svc.Issues = &contentCapture{inner: issues, captured: &captured}
	orch.svc = svc

	if _, err := orch.Run(context.Background(), testEvent(event.ActionLabeled)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if captured.Title != "[federated] Upgrade TLS stack" {
		t.Errorf("rendered title = %q", captured.Title)
	}
	if !strings.Contains(captured.Body, "Tracking issue: Upgrade TLS stack") {
		t.Errorf("rendered body = %q", captured.Body)
	}
	if len(captured.Labels) != 2 || captured.Labels[0] != "federated" {
		t.Errorf("labels should carry over from the parent: %v", captured.Labels)
	}
}

type contentCapture struct {
	inner    IssueService
	captured *github.IssueContent
}

func (c *contentCapture) CreateIssue(ctx context.Context, owner, repo string, content github.IssueContent) (github.IssueRef, error) {
	*c.captured = content
	return c.inner.CreateIssue(ctx, owner, repo, content)
}

func (c *contentCapture) UpdateIssue(ctx context.Context, ref github.IssueRef, content github.IssueContent) error {
	return c.inner.UpdateIssue(ctx, ref, content)
}

func (c *contentCapture) SetIssueState(ctx context.Context, ref github.IssueRef, open bool) error {
	return c.inner.SetIssueState(ctx, ref, open)
}

func (c *contentCapture) PostComment(ctx context.Context, ref github.IssueRef, body string) error {
	return c.inner.PostComment(ctx, ref, body)
}

func (c *contentCapture) IssueNodeID(ctx context.Context, ref github.IssueRef) (string, error) {
	return c.inner.IssueNodeID(ctx, ref)
}

func (c *contentCapture) LinkedChildren(ctx context.Context, parentNodeID string) ([]github.IssueRef, error) {
	return c.inner.LinkedChildren(ctx, parentNodeID)
}

func (c *contentCapture) LinkSubIssue(ctx context.Context, parentNodeID, childNodeID string) error {
	return c.inner.LinkSubIssue(ctx, parentNodeID, childNodeID)
}

func TestRunLabeledPartialFailure(t *testing.T) {
	issues := &fakeIssues{failCreateIn: map[string]bool{"service-auth": true}}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.created) != 1 || issues.created[0].Repo != "service-billing" {
		t.Errorf("second target should still run after first fails: %v", issues.created)
	}

	failures := report.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if failures[0].Repo != "service-auth" || failures[0].Phase != PhaseCreate {
		t.Errorf("unexpected failure: %+v", failures[0])
	}
}

func TestRunLabeledOrphanOnLinkFailure(t *testing.T) {
	issues := &fakeIssues{failLinkFor: map[string]bool{"service-auth": true}}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Both creates happen; only the billing child gets linked.
	if len(issues.created) != 2 {
		t.Fatalf("expected 2 created issues, got %d", len(issues.created))
	}
	if len(issues.linked) != 1 {
		t.Fatalf("expected 1 linked issue, got %d", len(issues.linked))
	}

	if len(report.Orphans) != 1 {
		t.Fatalf("expected 1 orphan, got %v", report.Orphans)
	}
	if report.Orphans[0].Repo != "service-auth" {
		t.Errorf("orphan repo = %q, want service-auth", report.Orphans[0].Repo)
	}

	failures := report.Failures()
	if len(failures) != 1 || failures[0].Phase != PhaseLink {
		t.Errorf("expected one link-phase failure, got %v", failures)
	}
}

func TestRunEditedUpdatesLinkedChildren(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "node-service-auth-11"},
			{Owner: "acme", Repo: "service-billing", Number: 12, NodeID: "node-service-billing-12"},
		},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionEdited))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.updated) != 2 {
		t.Fatalf("expected 2 updated children, got %d", len(issues.updated))
	}
	if report.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeCompleted)
	}
}

func TestRunEditedSkipsDeselectedRepo(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "n1"},
			{Owner: "acme", Repo: "retired-service", Number: 12, NodeID: "n2"},
		},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionEdited))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.updated) != 1 || issues.updated[0].Repo != "service-auth" {
		t.Errorf("deselected repository should be skipped: %v", issues.updated)
	}
	if len(report.Failures()) != 0 {
		t.Errorf("a skip is not a failure: %v", report.Failures())
	}
}

func TestRunEditedPartialFailure(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "n1"},
			{Owner: "acme", Repo: "service-billing", Number: 12, NodeID: "n2"},
		},
		failUpdate: map[string]bool{"service-auth": true},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionEdited))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.updated) != 1 || issues.updated[0].Repo != "service-billing" {
		t.Errorf("remaining children should still update: %v", issues.updated)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Phase != PhaseUpdate {
		t.Errorf("expected one update failure, got %v", failures)
	}
}

func TestRunClosedClosesChildren(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "n1"},
			{Owner: "acme", Repo: "service-billing", Number: 12, NodeID: "n2"},
		},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{
		CloseIssuesOnParentClose: true,
	})

	report, err := orch.Run(context.Background(), testEvent(event.ActionClosed))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.closed) != 2 {
		t.Fatalf("expected 2 closed children, got %d", len(issues.closed))
	}
	if report.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeCompleted)
	}
}

func TestRunClosedPartialFailure(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "n1"},
			{Owner: "acme", Repo: "service-billing", Number: 12, NodeID: "n2"},
		},
		failClose: map[string]bool{"service-auth": true},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{
		CloseIssuesOnParentClose: true,
	})

	report, err := orch.Run(context.Background(), testEvent(event.ActionClosed))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(issues.closed) != 1 || issues.closed[0].Repo != "service-billing" {
		t.Errorf("remaining children should still close: %v", issues.closed)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Phase != PhaseClose {
		t.Errorf("expected one close failure, got %v", failures)
	}
}

func TestRunClosedDisabled(t *testing.T) {
	issues := &fakeIssues{
		children: []github.IssueRef{
			{Owner: "acme", Repo: "service-auth", Number: 11, NodeID: "n1"},
		},
	}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{
		CloseIssuesOnParentClose: false,
	})

	report, err := orch.Run(context.Background(), testEvent(event.ActionClosed))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Outcome != OutcomeCloseDisabled {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeCloseDisabled)
	}
	if len(issues.closed) != 0 {
		t.Errorf("no children should be closed: %v", issues.closed)
	}
	if issues.childrenCalls != 0 {
		t.Errorf("the sub-issue graph should not be queried when close propagation is off, got %d lookups", issues.childrenCalls)
	}
}

func TestRunLabelGate(t *testing.T) {
	issues := &fakeIssues{}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	ev := testEvent(event.ActionLabeled)
	ev.Issue.Labels = []event.Label{{Name: "security"}}

	report, err := orch.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Outcome != OutcomeGated {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeGated)
	}
	if len(issues.created) != 0 {
		t.Errorf("gated run must not create issues: %v", issues.created)
	}
}

func TestRunLabelGateCaseSensitive(t *testing.T) {
	issues := &fakeIssues{}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	ev := testEvent(event.ActionLabeled)
	ev.Issue.Labels = []event.Label{{Name: "Federated"}}

	report, err := orch.Run(context.Background(), ev)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Outcome != OutcomeGated {
		t.Errorf("label matching must be case-sensitive, got outcome %q", report.Outcome)
	}
}

func TestRunDeniedActorNotifies(t *testing.T) {
	issues := &fakeIssues{}
	cfg := &fakeConfig{doc: `{
		"allowed": {"users": ["hubot"]},
		"targetRepositorySelectors": [{"method": "explicit", "repositories": ["docs"]}]
	}`}
	orch := testOrchestrator(issues, cfg, Options{NotifyMissingPermissions: true})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Outcome != OutcomeDenied {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeDenied)
	}
	if len(issues.created) != 0 {
		t.Errorf("denied run must not create issues: %v", issues.created)
	}
	if len(issues.comments) != 1 || !strings.Contains(issues.comments[0], "@octocat") {
		t.Errorf("expected a missing-permission comment mentioning the actor, got %v", issues.comments)
	}
}

func TestRunDeniedActorSilent(t *testing.T) {
	issues := &fakeIssues{}
	cfg := &fakeConfig{doc: `{
		"allowed": {"users": ["hubot"]},
		"targetRepositorySelectors": [{"method": "explicit", "repositories": ["docs"]}]
	}`}
	orch := testOrchestrator(issues, cfg, Options{NotifyMissingPermissions: false})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Outcome != OutcomeDenied {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeDenied)
	}
	if len(issues.comments) != 0 {
		t.Errorf("notification disabled, got comments %v", issues.comments)
	}
}

func TestRunNoTargets(t *testing.T) {
	issues := &fakeIssues{}
	cfg := &fakeConfig{doc: `{
		"targetRepositorySelectors": [{"method": "explicit", "repositories": []}]
	}`}
	orch := testOrchestrator(issues, cfg, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionLabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Outcome != OutcomeNoTargets {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeNoTargets)
	}
}

func TestRunMissingPolicyIsFatal(t *testing.T) {
	orch := testOrchestrator(&fakeIssues{}, &fakeConfig{doc: ""}, Options{})

	if _, err := orch.Run(context.Background(), testEvent(event.ActionLabeled)); err == nil {
		t.Fatal("missing policy document should abort the run")
	}
}

func TestRunUnsupportedSelectorIsFatal(t *testing.T) {
	cfg := &fakeConfig{doc: `{
		"targetRepositorySelectors": [{"method": "topic", "identifier": "infra"}]
	}`}
	orch := testOrchestrator(&fakeIssues{}, cfg, Options{})

	if _, err := orch.Run(context.Background(), testEvent(event.ActionLabeled)); err == nil {
		t.Fatal("unsupported selector method should abort the run")
	}
}

func TestRunIgnoredAction(t *testing.T) {
	issues := &fakeIssues{}
	orch := testOrchestrator(issues, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), testEvent(event.ActionUnlabeled))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Outcome != OutcomeIgnoredAction {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeIgnoredAction)
	}
	if len(issues.created)+len(issues.updated)+len(issues.closed) != 0 {
		t.Error("ignored action must not touch any issue")
	}
}

func TestRunNoIssuePayload(t *testing.T) {
	orch := testOrchestrator(&fakeIssues{}, &fakeConfig{doc: openPolicyTwoTargets}, Options{})

	report, err := orch.Run(context.Background(), &event.IssueEvent{Action: event.ActionLabeled})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Outcome != OutcomeNoIssue {
		t.Errorf("outcome = %q, want %q", report.Outcome, OutcomeNoIssue)
	}
}
