package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
)

const millisPerHour = 60 * 60 * 1000

// PenaltyResult is a penalty computation: the accumulated penalty percentage
// and the penalty-adjusted final cost, both rounded to two decimals.
type PenaltyResult struct {
	Percentage float64 `json:"penalty_percentage"`
	FinalCost  float64 `json:"final_cost"`
}

// ComputePenalty derives the SLA penalty from a base cost, a client's penalty
// rate (percent per breach hour, nil when not configured) and the SLA breach
// state. Partial breach hours round up; exactly zero breach time yields no
// penalty. The percentage is uncapped and the final cost may go negative.
func ComputePenalty(baseCost float64, ratePerHour *float64, sla client.SLAStatus) PenaltyResult {
	if ratePerHour == nil || !sla.Breached {
		return PenaltyResult{Percentage: 0, FinalCost: round2(baseCost)}
	}

	breachMillis := sla.RemainingMillis
	if breachMillis < 0 {
		breachMillis = -breachMillis
	}
	breachHours := (breachMillis + millisPerHour - 1) / millisPerHour

	percentage := float64(breachHours) * *ratePerHour
	finalCost := baseCost - baseCost*(percentage/100)

	return PenaltyResult{Percentage: round2(percentage), FinalCost: round2(finalCost)}
}

// FieldWriteOutcome is the result of one best-effort field write.
type FieldWriteOutcome struct {
	Field string
	Err   error
}

// CostRecalculation is the full outcome of a penalty recalculation pass.
type CostRecalculation struct {
	OrganizationID string
	BaseCost       float64
	Penalty        PenaltyResult
	Writes         []FieldWriteOutcome
}

// FailedWrites returns the field IDs whose write failed.
func (c *CostRecalculation) FailedWrites() []string {
	var failed []string
	for _, w := range c.Writes {
		if w.Err != nil {
			failed = append(failed, w.Field)
		}
	}
	return failed
}

// PenaltyService computes penalty-adjusted costs and writes them back onto
// the issue.
type PenaltyService struct {
	gateway TicketGateway
	clients ClientStore
	cfg     *config.Config
	log     zerolog.Logger
}

// NewPenaltyService creates a new PenaltyService.
func NewPenaltyService(gateway TicketGateway, clients ClientStore, cfg *config.Config, log zerolog.Logger) *PenaltyService {
	return &PenaltyService{
		gateway: gateway,
		clients: clients,
		cfg:     cfg,
		log:     log,
	}
}

// RecalculateCosts resolves the issue's base cost, applies the client's SLA
// penalty and writes the penalty percentage and final total cost back onto
// the issue. Each field write is independently best-effort: a failure is
// logged and reported in the result, and never aborts the other write or the
// computation. A client without a penalty rate (or without any client record
// at all) yields a zero penalty, not an error.
func (s *PenaltyService) RecalculateCosts(ctx context.Context, issueID string) (*CostRecalculation, error) {
	issue, err := s.gateway.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	orgID, _, ok := issue.OrganizationRef(s.cfg.Fields.Organization)
	if !ok {
		return nil, errors.InvalidInput("organization", "issue has no linked organization")
	}

	baseCost := ResolveBaseCost(issue, s.cfg.Fields.EstimatedCost, s.cfg.Fields.LaborCost)

	var rate *float64
	rec, err := s.clients.GetByOrganization(ctx, orgID)
	switch {
	case err == nil:
		rate = rec.PenaltyRate
	case errors.IsNotFound(err):
		s.log.Debug().
			Str("issue_id", issueID).
			Str("organization_id", orgID).
			Msg("No client record for organization; computing costs without penalty")
	default:
		return nil, err
	}

	sla := client.SLAStatus{}
	if rate != nil {
		status, err := s.gateway.GetSLAStatus(ctx, issueID, s.cfg.Automation.SLAMetricName)
		if err != nil {
			return nil, err
		}
		sla = *status
	}

	result := ComputePenalty(baseCost, rate, sla)

	recalc := &CostRecalculation{
		OrganizationID: orgID,
		BaseCost:       baseCost,
		Penalty:        result,
	}
	// The percentage field stores a fraction (5% → 0.05) at 2-decimal
	// percent precision; the total cost field stores the adjusted amount.
	recalc.Writes = append(recalc.Writes,
		s.writeField(ctx, issueID, s.cfg.Fields.PenaltyPercentage, result.Percentage/100),
		s.writeField(ctx, issueID, s.cfg.Fields.TotalCost, result.FinalCost),
	)

	s.log.Info().
		Str("issue_id", issueID).
		Str("organization_id", orgID).
		Float64("base_cost", baseCost).
		Float64("penalty_percentage", result.Percentage).
		Float64("final_cost", result.FinalCost).
		Strs("failed_writes", recalc.FailedWrites()).
		Msg("Costs recalculated")

	return recalc, nil
}

func (s *PenaltyService) writeField(ctx context.Context, issueID, fieldID string, value any) FieldWriteOutcome {
	err := s.gateway.UpdateField(ctx, issueID, fieldID, value)
	if err != nil {
		s.log.Warn().Err(err).
			Str("issue_id", issueID).
			Str("field_id", fieldID).
			Msg("Failed to update issue field; continuing")
	}
	return FieldWriteOutcome{Field: fieldID, Err: err}
}
