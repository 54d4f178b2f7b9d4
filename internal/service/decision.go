package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

// Outcome classifies an automation decision.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomeManualReview Outcome = "manual_review"
	OutcomeSkipped      Outcome = "skipped"
)

// Rejection reasons.
const (
	ReasonContractNotActive = "contract not active"
	ReasonCostExceedsBudget = "cost exceeds budget"
)

// Decision is the advisory outcome for a ticket under review. The caller is
// responsible for executing the matching workflow transition.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

func approve() Decision { return Decision{Outcome: OutcomeApproved} }

func reject(reason string) Decision { return Decision{Outcome: OutcomeRejected, Reason: reason} }

func manual(reason string) Decision { return Decision{Outcome: OutcomeManualReview, Reason: reason} }

func skipped(reason string) Decision { return Decision{Outcome: OutcomeSkipped, Reason: reason} }

// Decide classifies an estimated cost against a client's budget and contract
// validity window. Pure: no side effects, calendar-date comparison only.
//
// Any missing precondition (estimate, client record, budget) yields
// ManualReview with a specific reason. The validity check takes priority
// over the budget check: an out-of-window ticket is rejected regardless of
// cost. Both window ends are inclusive.
func Decide(estimate *float64, rec *repository.ClientRecord, today time.Time) Decision {
	if estimate == nil {
		return manual("could not determine an initial cost for the issue")
	}
	if rec == nil {
		return manual("no client record registered for the organization")
	}
	if rec.Budget == nil {
		return manual(fmt.Sprintf("no budget registered for client %q", rec.Name))
	}

	day := truncateToDate(today)
	if rec.ValidFrom != nil && day.Before(truncateToDate(*rec.ValidFrom)) {
		return reject(ReasonContractNotActive)
	}
	if rec.ValidTo != nil && day.After(truncateToDate(*rec.ValidTo)) {
		return reject(ReasonContractNotActive)
	}

	if *estimate <= *rec.Budget {
		return approve()
	}
	return reject(ReasonCostExceedsBudget)
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DecisionService runs the approval automation pass for tickets entering the
// review state.
type DecisionService struct {
	gateway TicketGateway
	clients ClientStore
	audit   DecisionAuditStore
	cfg     *config.Config
	log     zerolog.Logger
	now     func() time.Time
}

// NewDecisionService creates a new DecisionService.
func NewDecisionService(gateway TicketGateway, clients ClientStore, audit DecisionAuditStore, cfg *config.Config, log zerolog.Logger) *DecisionService {
	return &DecisionService{
		gateway: gateway,
		clients: clients,
		audit:   audit,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// ProcessReview runs one automation pass over an issue that entered the
// review state: resolve the estimate and the client, decide, and execute the
// matching transition. Every failure path degrades to the manual-review
// transition; no error from this flow ever reaches the tracker as anything
// but a transition.
func (s *DecisionService) ProcessReview(ctx context.Context, issueID string) (Decision, error) {
	// Flat wait before reading the issue, so upstream field propagation
	// (automation rules populating cost fields) has settled.
	if err := s.settle(ctx); err != nil {
		return skipped("cancelled"), err
	}

	issue, err := s.gateway.GetIssue(ctx, issueID)
	if err != nil {
		s.log.Error().Err(err).Str("issue_id", issueID).Msg("Failed to fetch issue; routing to manual review")
		return s.fallbackToManual(ctx, issueID, nil, "issue could not be fetched from the tracker"), nil
	}

	if !strings.EqualFold(issue.StatusName(), s.cfg.Automation.ReviewStatus) {
		return skipped(fmt.Sprintf("issue is in status %q, not under review", issue.StatusName())), nil
	}

	var estimate *float64
	if cost, _, ok := ResolveEstimate(issue, s.cfg.Fields.EstimatedCost); ok {
		estimate = &cost
	}

	orgID, orgName, hasOrg := issue.OrganizationRef(s.cfg.Fields.Organization)
	if !hasOrg {
		return s.fallbackToManual(ctx, issueID, estimate, "issue has no linked organization"), nil
	}

	var rec *repository.ClientRecord
	rec, err = s.clients.GetByOrganization(ctx, orgID)
	if err != nil && !errors.IsNotFound(err) {
		s.log.Error().Err(err).Str("issue_id", issueID).Str("organization_id", orgID).Msg("Client lookup failed; routing to manual review")
		return s.fallbackToManual(ctx, issueID, estimate, "client record could not be loaded"), nil
	}
	if errors.IsNotFound(err) {
		return s.fallbackToManual(ctx, issueID, estimate,
			fmt.Sprintf("no client registered for organization %q", orgName)), nil
	}

	decision := Decide(estimate, rec, s.now())
	if decision.Outcome == OutcomeManualReview {
		return s.fallbackToManual(ctx, issueID, estimate, decision.Reason), nil
	}

	transitionName := s.cfg.Automation.TransitionApprove
	if decision.Outcome == OutcomeRejected {
		transitionName = s.cfg.Automation.TransitionReject
	}

	if err := s.executeTransitionByName(ctx, issueID, transitionName); err != nil {
		s.log.Warn().Err(err).
			Str("issue_id", issueID).
			Str("transition", transitionName).
			Msg("Decision transition unavailable; routing to manual review")
		return s.fallbackToManual(ctx, issueID, estimate,
			fmt.Sprintf("transition %q could not be executed", transitionName)), nil
	}

	s.log.Info().
		Str("issue_id", issueID).
		Str("organization_id", orgID).
		Str("outcome", string(decision.Outcome)).
		Str("reason", decision.Reason).
		Msg("Automation decision executed")

	s.appendAudit(ctx, issueID, &orgID, decision, estimate, rec.Budget)
	return decision, nil
}

// executeTransitionByName resolves a transition by case-insensitive exact
// name and executes it.
func (s *DecisionService) executeTransitionByName(ctx context.Context, issueID, name string) error {
	transitions, err := s.gateway.ListTransitions(ctx, issueID)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		if strings.EqualFold(t.Name, name) {
			return s.gateway.ExecuteTransition(ctx, issueID, t.ID.String())
		}
	}
	return errors.NotFound("transition", name)
}

// fallbackToManual routes an issue to the manual approval transition. The
// attempt itself is best-effort: if the manual transition is missing or the
// tracker call fails, the failure is logged and the issue stays where it is,
// awaiting human intervention.
func (s *DecisionService) fallbackToManual(ctx context.Context, issueID string, estimate *float64, reason string) Decision {
	s.log.Info().
		Str("issue_id", issueID).
		Str("reason", reason).
		Msg("Routing issue to manual approval")

	if err := s.executeTransitionByName(ctx, issueID, s.cfg.Automation.TransitionManual); err != nil {
		s.log.Error().Err(err).
			Str("issue_id", issueID).
			Msg("Failed to move issue to manual approval; issue left in current state")
	}

	decision := manual(reason)
	s.appendAudit(ctx, issueID, nil, decision, estimate, nil)
	return decision
}

func (s *DecisionService) settle(ctx context.Context) error {
	delay := s.cfg.SettleDelay()
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// appendAudit writes a decision audit entry and logs a warning on failure
// (never returns an error).
func (s *DecisionService) appendAudit(ctx context.Context, issueID string, orgID *string, d Decision, estimate, budget *float64) {
	var reason *string
	if d.Reason != "" {
		reason = &d.Reason
	}
	entry := &repository.DecisionAuditEntry{
		IssueID:        issueID,
		OrganizationID: orgID,
		Outcome:        string(d.Outcome),
		Reason:         reason,
		EstimatedCost:  estimate,
		Budget:         budget,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("issue_id", issueID).
			Str("outcome", string(d.Outcome)).
			Msg("Failed to write decision audit entry")
	}
}

// GetDecisionHistory returns the audit trail for an issue.
func (s *DecisionService) GetDecisionHistory(ctx context.Context, issueID string) ([]*repository.DecisionAuditEntry, error) {
	return s.audit.GetByIssueID(ctx, issueID)
}
