package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Automation.SettleDelaySeconds = -1 // no settle wait in tests
	cfg.Automation.ReviewStatus = "En revisión"
	cfg.Automation.ResolvedStatuses = []string{"Resuelto", "Completado"}
	cfg.Automation.SuccessResolution = "Done"
	cfg.Automation.SLAMetricName = "Time to resolution"
	cfg.Automation.TransitionManual = "Aprobación Manual"
	cfg.Automation.TransitionApprove = "Auto Aprobación"
	cfg.Automation.TransitionReject = "Auto Rechazo"
	cfg.Fields.EstimatedCost = "customfield_10001"
	cfg.Fields.Organization = "customfield_10002"
	cfg.Fields.LaborCost = "customfield_10003"
	cfg.Fields.PenaltyPercentage = "customfield_10004"
	cfg.Fields.TotalCost = "customfield_10005"
	return cfg
}

func makeIssue(id, status, resolution string, fields map[string]any) *client.Issue {
	all := map[string]any{}
	if status != "" {
		all["status"] = map[string]any{"name": status}
	}
	if resolution != "" {
		all["resolution"] = map[string]any{"name": resolution}
	}
	for k, v := range fields {
		all[k] = v
	}
	return &client.Issue{ID: id, Key: "SD-" + id, Fields: all}
}

func orgField(orgID, name string) []any {
	return []any{map[string]any{"id": orgID, "name": name}}
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// ── gateway fake ─────────────────────────────────────────────────────────────

type fieldWrite struct {
	IssueID string
	FieldID string
	Value   any
}

type fakeGateway struct {
	issues      map[string]*client.Issue
	transitions []client.Transition
	sla         client.SLAStatus

	getIssueErr    error
	transitionsErr error
	executeErr     error
	slaErr         error
	writeErrs      map[string]error // fieldID → error

	executed []string // transition IDs in execution order
	writes   []fieldWrite
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		issues: map[string]*client.Issue{},
		transitions: []client.Transition{
			{ID: "11", Name: "Aprobación Manual"},
			{ID: "21", Name: "Auto Aprobación"},
			{ID: "31", Name: "Auto Rechazo"},
		},
	}
}

func (g *fakeGateway) GetIssue(ctx context.Context, issueID string) (*client.Issue, error) {
	if g.getIssueErr != nil {
		return nil, g.getIssueErr
	}
	issue, ok := g.issues[issueID]
	if !ok {
		return nil, errors.NotFound("issue", issueID)
	}
	return issue, nil
}

func (g *fakeGateway) ListTransitions(ctx context.Context, issueID string) ([]client.Transition, error) {
	if g.transitionsErr != nil {
		return nil, g.transitionsErr
	}
	return g.transitions, nil
}

func (g *fakeGateway) ExecuteTransition(ctx context.Context, issueID, transitionID string) error {
	if g.executeErr != nil {
		return g.executeErr
	}
	g.executed = append(g.executed, transitionID)
	return nil
}

func (g *fakeGateway) UpdateField(ctx context.Context, issueID, fieldID string, value any) error {
	if err := g.writeErrs[fieldID]; err != nil {
		return err
	}
	g.writes = append(g.writes, fieldWrite{IssueID: issueID, FieldID: fieldID, Value: value})
	return nil
}

func (g *fakeGateway) GetSLAStatus(ctx context.Context, issueID, metricName string) (*client.SLAStatus, error) {
	if g.slaErr != nil {
		return nil, g.slaErr
	}
	sla := g.sla
	return &sla, nil
}

// ── store fakes ──────────────────────────────────────────────────────────────

type fakeClientStore struct {
	byOrg     map[string]*repository.ClientRecord
	createErr error
	created   []*repository.ClientRecord
	updated   []*repository.ClientRecord
}

func newFakeClientStore(records ...*repository.ClientRecord) *fakeClientStore {
	s := &fakeClientStore{byOrg: map[string]*repository.ClientRecord{}}
	for _, rec := range records {
		s.byOrg[rec.OrganizationID] = rec
	}
	return s
}

func (s *fakeClientStore) Create(ctx context.Context, rec *repository.ClientRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, exists := s.byOrg[rec.OrganizationID]; exists {
		return errors.New(errors.ErrCodeConflict, "a client already exists for organization "+rec.OrganizationID)
	}
	s.byOrg[rec.OrganizationID] = rec
	s.created = append(s.created, rec)
	return nil
}

func (s *fakeClientStore) GetByOrganization(ctx context.Context, orgID string) (*repository.ClientRecord, error) {
	rec, ok := s.byOrg[orgID]
	if !ok {
		return nil, errors.NotFound("client", "organization "+orgID)
	}
	return rec, nil
}

func (s *fakeClientStore) GetByID(ctx context.Context, id string) (*repository.ClientRecord, error) {
	for _, rec := range s.byOrg {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errors.NotFound("client", id)
}

func (s *fakeClientStore) List(ctx context.Context, limit, offset int) ([]*repository.ClientRecord, int64, error) {
	var all []*repository.ClientRecord
	for _, rec := range s.byOrg {
		all = append(all, rec)
	}
	return all, int64(len(all)), nil
}

func (s *fakeClientStore) Update(ctx context.Context, rec *repository.ClientRecord) error {
	s.byOrg[rec.OrganizationID] = rec
	s.updated = append(s.updated, rec)
	return nil
}

type debit struct {
	IssueID string
	OrgID   string
	Amount  float64
}

type fakeLedger struct {
	budgets map[string]float64
	seen    map[string]bool
	debits  []debit
}

func newFakeLedger(budgets map[string]float64) *fakeLedger {
	return &fakeLedger{budgets: budgets, seen: map[string]bool{}}
}

func (l *fakeLedger) RecordDebit(ctx context.Context, issueID, orgID string, amount float64) (*repository.DebitResult, error) {
	if l.seen[issueID] {
		return &repository.DebitResult{AlreadyReconciled: true}, nil
	}
	balance, ok := l.budgets[orgID]
	if !ok {
		return nil, errors.NotFound("client budget", "organization "+orgID)
	}
	l.seen[issueID] = true
	l.budgets[orgID] = balance - amount
	l.debits = append(l.debits, debit{IssueID: issueID, OrgID: orgID, Amount: amount})
	return &repository.DebitResult{NewBudget: l.budgets[orgID]}, nil
}

type fakeAudit struct {
	entries   []*repository.DecisionAuditEntry
	appendErr error
}

func (a *fakeAudit) Append(ctx context.Context, entry *repository.DecisionAuditEntry) error {
	if a.appendErr != nil {
		return a.appendErr
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) GetByIssueID(ctx context.Context, issueID string) ([]*repository.DecisionAuditEntry, error) {
	var entries []*repository.DecisionAuditEntry
	for _, e := range a.entries {
		if e.IssueID == issueID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ── directory fake ───────────────────────────────────────────────────────────

type fakeDirectory struct {
	nextOrgID    int
	createOrgErr error
	projects     []client.Project
	projectsErr  error
	associateErr error
	desks        []client.ServiceDesk
	desksErr     error
	requestTypes map[string][]client.RequestType
	typesErrs    map[string]error

	createdOrgs  []string
	associations []string // "projectID:orgID"
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		nextOrgID:    100,
		requestTypes: map[string][]client.RequestType{},
		typesErrs:    map[string]error{},
	}
}

func (d *fakeDirectory) CreateOrganization(ctx context.Context, name string) (*client.Organization, error) {
	if d.createOrgErr != nil {
		return nil, d.createOrgErr
	}
	d.nextOrgID++
	org := &client.Organization{ID: client.ID(itoa(d.nextOrgID)), Name: name}
	d.createdOrgs = append(d.createdOrgs, name)
	return org, nil
}

func (d *fakeDirectory) ListServiceDeskProjects(ctx context.Context) ([]client.Project, error) {
	if d.projectsErr != nil {
		return nil, d.projectsErr
	}
	return d.projects, nil
}

func (d *fakeDirectory) AddOrganizationToServiceDesk(ctx context.Context, serviceDeskID, orgID string) error {
	if d.associateErr != nil {
		return d.associateErr
	}
	d.associations = append(d.associations, serviceDeskID+":"+orgID)
	return nil
}

func (d *fakeDirectory) ListServiceDesks(ctx context.Context) ([]client.ServiceDesk, error) {
	if d.desksErr != nil {
		return nil, d.desksErr
	}
	return d.desks, nil
}

func (d *fakeDirectory) ListRequestTypes(ctx context.Context, serviceDeskID string) ([]client.RequestType, error) {
	if err := d.typesErrs[serviceDeskID]; err != nil {
		return nil, err
	}
	return d.requestTypes[serviceDeskID], nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
