package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

// ReconcileResult reports what a resolution pass did.
type ReconcileResult struct {
	Reconciled bool    `json:"reconciled"`
	Reason     string  `json:"reason,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	NewBudget  float64 `json:"new_budget,omitempty"`
}

// ReconcilerService debits a resolved ticket's final cost from its client's
// budget, exactly once per ticket.
type ReconcilerService struct {
	gateway TicketGateway
	clients ClientStore
	ledger  LedgerStore
	penalty *PenaltyService
	audit   DecisionAuditStore
	cfg     *config.Config
	log     zerolog.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(
	gateway TicketGateway,
	clients ClientStore,
	ledger LedgerStore,
	penalty *PenaltyService,
	audit DecisionAuditStore,
	cfg *config.Config,
	log zerolog.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		gateway: gateway,
		clients: clients,
		ledger:  ledger,
		penalty: penalty,
		audit:   audit,
		cfg:     cfg,
		log:     log,
	}
}

// ProcessResolution handles a ticket entering a terminal resolved state:
// recompute and write the penalty-adjusted costs, then, when the resolution
// is the success outcome, debit the authoritative final cost from the
// client's budget. Upstream failures are logged and absorbed; the budget is
// only ever touched through the exactly-once ledger debit.
func (s *ReconcilerService) ProcessResolution(ctx context.Context, issueID string) (*ReconcileResult, error) {
	// The recalculation also writes the penalty and total cost fields onto
	// the issue; its result doubles as the authoritative final cost below.
	recalc, err := s.penalty.RecalculateCosts(ctx, issueID)
	if err != nil {
		s.log.Warn().Err(err).Str("issue_id", issueID).Msg("Cost recalculation failed; falling back to stored cost fields")
		recalc = nil
	}

	issue, err := s.gateway.GetIssue(ctx, issueID)
	if err != nil {
		s.log.Error().Err(err).Str("issue_id", issueID).Msg("Failed to fetch resolved issue; skipping reconciliation")
		return s.skip(issueID, "issue could not be fetched from the tracker"), nil
	}

	status := issue.StatusName()
	if !s.isResolvedStatus(status) {
		return s.skip(issueID, fmt.Sprintf("issue is in status %q, not resolved", status)), nil
	}

	resolution := issue.ResolutionName()
	if !strings.EqualFold(resolution, s.cfg.Automation.SuccessResolution) {
		return s.skip(issueID, fmt.Sprintf("resolution %q does not debit budget", resolution)), nil
	}

	amount, ok := s.finalCost(recalc, issue)
	if !ok {
		return s.skip(issueID, "issue has no cost data"), nil
	}

	orgID, orgName, hasOrg := issue.OrganizationRef(s.cfg.Fields.Organization)
	if !hasOrg {
		return s.skip(issueID, "issue has no linked organization"), nil
	}

	rec, err := s.clients.GetByOrganization(ctx, orgID)
	if errors.IsNotFound(err) {
		return s.skip(issueID, fmt.Sprintf("no client registered for organization %q", orgName)), nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Budget == nil {
		return s.skip(issueID, fmt.Sprintf("client %q has no budget configured", rec.Name)), nil
	}

	debit, err := s.ledger.RecordDebit(ctx, issueID, orgID, amount)
	if err != nil {
		if errors.IsNotFound(err) {
			return s.skip(issueID, "client budget disappeared before debit"), nil
		}
		return nil, err
	}
	if debit.AlreadyReconciled {
		s.log.Info().
			Str("issue_id", issueID).
			Str("organization_id", orgID).
			Msg("Issue already reconciled; budget untouched")
		return &ReconcileResult{Reconciled: false, Reason: "already reconciled"}, nil
	}

	s.log.Info().
		Str("issue_id", issueID).
		Str("organization_id", orgID).
		Str("client", rec.Name).
		Float64("amount", amount).
		Float64("new_budget", debit.NewBudget).
		Msg("Budget reconciled")

	s.appendAudit(ctx, issueID, orgID, amount, debit.NewBudget)

	return &ReconcileResult{Reconciled: true, Amount: amount, NewBudget: debit.NewBudget}, nil
}

// finalCost determines the authoritative amount to debit: the freshly
// recomputed total when positive, then the stored total cost field, then the
// estimate. Reports ok=false when no cost data exists at all.
func (s *ReconcilerService) finalCost(recalc *CostRecalculation, issue *client.Issue) (float64, bool) {
	if recalc != nil && recalc.Penalty.FinalCost > 0 {
		return recalc.Penalty.FinalCost, true
	}
	if total, ok := issue.NumberField(s.cfg.Fields.TotalCost); ok && total > 0 {
		return total, true
	}
	if estimate, ok := issue.NumberField(s.cfg.Fields.EstimatedCost); ok && estimate != 0 {
		return estimate, true
	}
	return 0, false
}

func (s *ReconcilerService) isResolvedStatus(status string) bool {
	for _, resolved := range s.cfg.Automation.ResolvedStatuses {
		if strings.EqualFold(status, resolved) {
			return true
		}
	}
	return false
}

func (s *ReconcilerService) skip(issueID, reason string) *ReconcileResult {
	s.log.Info().
		Str("issue_id", issueID).
		Str("reason", reason).
		Msg("Reconciliation skipped")
	return &ReconcileResult{Reconciled: false, Reason: reason}
}

func (s *ReconcilerService) appendAudit(ctx context.Context, issueID, orgID string, amount, newBudget float64) {
	reason := fmt.Sprintf("debited %.2f", amount)
	entry := &repository.DecisionAuditEntry{
		IssueID:        issueID,
		OrganizationID: &orgID,
		Outcome:        "reconciled",
		Reason:         &reason,
		Metadata: map[string]interface{}{
			"amount":     amount,
			"new_budget": newBudget,
		},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("issue_id", issueID).
			Msg("Failed to write reconciliation audit entry")
	}
}
