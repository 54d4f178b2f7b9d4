package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

func activeClient(budget float64) *repository.ClientRecord {
	return &repository.ClientRecord{
		ID:             "c-1",
		OrganizationID: "42",
		Name:           "Acme",
		ValidFrom:      datePtr(2024, time.January, 1),
		ValidTo:        datePtr(2024, time.December, 31),
		Budget:         &budget,
	}
}

func TestDecide(t *testing.T) {
	midYear := time.Date(2024, time.June, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		estimate *float64
		rec      *repository.ClientRecord
		today    time.Time
		outcome  Outcome
		reason   string
	}{
		{
			name:     "within budget and window approves",
			estimate: floatPtr(400),
			rec:      activeClient(500),
			today:    midYear,
			outcome:  OutcomeApproved,
		},
		{
			name:     "cost equal to budget approves",
			estimate: floatPtr(500),
			rec:      activeClient(500),
			today:    midYear,
			outcome:  OutcomeApproved,
		},
		{
			name:     "cost over budget rejects",
			estimate: floatPtr(600),
			rec:      activeClient(500),
			today:    midYear,
			outcome:  OutcomeRejected,
			reason:   ReasonCostExceedsBudget,
		},
		{
			name:     "before window rejects regardless of cost",
			estimate: floatPtr(1),
			rec:      activeClient(500),
			today:    time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC),
			outcome:  OutcomeRejected,
			reason:   ReasonContractNotActive,
		},
		{
			name:     "after window rejects regardless of cost",
			estimate: floatPtr(1),
			rec:      activeClient(500),
			today:    time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC),
			outcome:  OutcomeRejected,
			reason:   ReasonContractNotActive,
		},
		{
			name:     "window ends are inclusive",
			estimate: floatPtr(400),
			rec:      activeClient(500),
			today:    time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC),
			outcome:  OutcomeApproved,
		},
		{
			name:     "missing estimate routes to manual",
			estimate: nil,
			rec:      activeClient(500),
			today:    midYear,
			outcome:  OutcomeManualReview,
		},
		{
			name:     "missing client routes to manual",
			estimate: floatPtr(400),
			rec:      nil,
			today:    midYear,
			outcome:  OutcomeManualReview,
		},
		{
			name:     "missing budget routes to manual",
			estimate: floatPtr(400),
			rec:      &repository.ClientRecord{Name: "Acme", ValidFrom: datePtr(2024, time.January, 1)},
			today:    midYear,
			outcome:  OutcomeManualReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.estimate, tt.rec, tt.today)
			if d.Outcome != tt.outcome {
				t.Fatalf("Decide() outcome = %q, want %q (reason %q)", d.Outcome, tt.outcome, d.Reason)
			}
			if tt.reason != "" && d.Reason != tt.reason {
				t.Fatalf("Decide() reason = %q, want %q", d.Reason, tt.reason)
			}
			if tt.outcome == OutcomeManualReview && d.Reason == "" {
				t.Fatal("manual review decision must carry a reason")
			}
		})
	}
}

func TestDecideApprovesIffWithinBudget(t *testing.T) {
	rec := activeClient(500)
	today := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	for _, cost := range []float64{0.01, 250, 499.99, 500, 500.01, 750, 10000} {
		d := Decide(&cost, rec, today)
		wantApprove := cost <= *rec.Budget
		if (d.Outcome == OutcomeApproved) != wantApprove {
			t.Errorf("cost %.2f vs budget %.2f: outcome = %q", cost, *rec.Budget, d.Outcome)
		}
	}
}

func newDecisionService(gw *fakeGateway, store *fakeClientStore, audit *fakeAudit) *DecisionService {
	svc := NewDecisionService(gw, store, audit, testConfig(), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestProcessReviewApproves(t *testing.T) {
	gw := newFakeGateway()
	gw.issues["1001"] = makeIssue("1001", "En revisión", "", map[string]any{
		"customfield_10001": float64(400),
		"customfield_10002": orgField("42", "Acme"),
	})
	store := newFakeClientStore(activeClient(500))
	audit := &fakeAudit{}
	svc := newDecisionService(gw, store, audit)

	decision, err := svc.ProcessReview(context.Background(), "1001")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %q (reason %q), want approved", decision.Outcome, decision.Reason)
	}
	if len(gw.executed) != 1 || gw.executed[0] != "21" {
		t.Fatalf("executed transitions = %v, want approve transition 21", gw.executed)
	}
	if len(audit.entries) != 1 || audit.entries[0].Outcome != string(OutcomeApproved) {
		t.Fatalf("audit entries = %+v, want one approved entry", audit.entries)
	}
}

func TestProcessReviewRejectsOverBudget(t *testing.T) {
	gw := newFakeGateway()
	gw.issues["1002"] = makeIssue("1002", "EN REVISIÓN", "", map[string]any{
		"customfield_10001": "600",
		"customfield_10002": orgField("42", "Acme"),
	})
	store := newFakeClientStore(activeClient(500))
	svc := newDecisionService(gw, store, &fakeAudit{})

	decision, err := svc.ProcessReview(context.Background(), "1002")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeRejected || decision.Reason != ReasonCostExceedsBudget {
		t.Fatalf("decision = %+v, want rejection for cost exceeds budget", decision)
	}
	if len(gw.executed) != 1 || gw.executed[0] != "31" {
		t.Fatalf("executed transitions = %v, want reject transition 31", gw.executed)
	}
}

func TestProcessReviewSkipsWhenNotUnderReview(t *testing.T) {
	gw := newFakeGateway()
	gw.issues["1003"] = makeIssue("1003", "Abierto", "", map[string]any{
		"customfield_10001": float64(400),
		"customfield_10002": orgField("42", "Acme"),
	})
	svc := newDecisionService(gw, newFakeClientStore(activeClient(500)), &fakeAudit{})

	decision, err := svc.ProcessReview(context.Background(), "1003")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", decision.Outcome)
	}
	if len(gw.executed) != 0 {
		t.Fatalf("executed transitions = %v, want none", gw.executed)
	}
}

func TestProcessReviewManualPaths(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		store  *fakeClientStore
	}{
		{
			name: "missing estimate",
			fields: map[string]any{
				"customfield_10002": orgField("42", "Acme"),
			},
			store: newFakeClientStore(activeClient(500)),
		},
		{
			name: "zero estimate",
			fields: map[string]any{
				"customfield_10001": float64(0),
				"customfield_10002": orgField("42", "Acme"),
			},
			store: newFakeClientStore(activeClient(500)),
		},
		{
			name: "missing organization",
			fields: map[string]any{
				"customfield_10001": float64(400),
			},
			store: newFakeClientStore(activeClient(500)),
		},
		{
			name: "no client registered",
			fields: map[string]any{
				"customfield_10001": float64(400),
				"customfield_10002": orgField("99", "Unknown Org"),
			},
			store: newFakeClientStore(activeClient(500)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.issues["2001"] = makeIssue("2001", "En revisión", "", tt.fields)
			svc := newDecisionService(gw, tt.store, &fakeAudit{})

			decision, err := svc.ProcessReview(context.Background(), "2001")
			if err != nil {
				t.Fatalf("ProcessReview() error = %v", err)
			}
			if decision.Outcome != OutcomeManualReview {
				t.Fatalf("outcome = %q (reason %q), want manual review", decision.Outcome, decision.Reason)
			}
			if len(gw.executed) != 1 || gw.executed[0] != "11" {
				t.Fatalf("executed transitions = %v, want manual transition 11", gw.executed)
			}
		})
	}
}

func TestProcessReviewFallsBackWhenIssueFetchFails(t *testing.T) {
	gw := newFakeGateway()
	svc := newDecisionService(gw, newFakeClientStore(), &fakeAudit{})

	decision, err := svc.ProcessReview(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeManualReview {
		t.Fatalf("outcome = %q, want manual review", decision.Outcome)
	}
	if len(gw.executed) != 1 || gw.executed[0] != "11" {
		t.Fatalf("executed transitions = %v, want manual transition 11", gw.executed)
	}
}

func TestProcessReviewFallsBackWhenDecisionTransitionMissing(t *testing.T) {
	gw := newFakeGateway()
	gw.transitions = gw.transitions[:1] // only the manual transition exists
	gw.issues["3001"] = makeIssue("3001", "En revisión", "", map[string]any{
		"customfield_10001": float64(400),
		"customfield_10002": orgField("42", "Acme"),
	})
	svc := newDecisionService(gw, newFakeClientStore(activeClient(500)), &fakeAudit{})

	decision, err := svc.ProcessReview(context.Background(), "3001")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeManualReview {
		t.Fatalf("outcome = %q, want manual review fallback", decision.Outcome)
	}
	if len(gw.executed) != 1 || gw.executed[0] != "11" {
		t.Fatalf("executed transitions = %v, want only manual transition 11", gw.executed)
	}
}

func TestProcessReviewAuditFailureDoesNotFail(t *testing.T) {
	gw := newFakeGateway()
	gw.issues["4001"] = makeIssue("4001", "En revisión", "", map[string]any{
		"customfield_10001": float64(400),
		"customfield_10002": orgField("42", "Acme"),
	})
	audit := &fakeAudit{appendErr: context.DeadlineExceeded}
	svc := newDecisionService(gw, newFakeClientStore(activeClient(500)), audit)

	decision, err := svc.ProcessReview(context.Background(), "4001")
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if decision.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %q, want approved despite audit failure", decision.Outcome)
	}
}
