package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-sd-budget/internal/database"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
)

// ReconciliationRepository performs the exactly-once budget debit. The
// per-issue marker insert and the budget decrement run in one transaction:
// a duplicate resolution event hits the marker's primary key and commits
// without touching the budget, and two issues resolving concurrently are
// serialized per client row by the atomic UPDATE, so no debit is ever lost
// to a read-modify-write race.
type ReconciliationRepository struct {
	db *database.DB
}

// NewReconciliationRepository creates a new ReconciliationRepository.
func NewReconciliationRepository(db *database.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// RecordDebit debits amount from the organization's client budget, at most
// once per issue. Returns AlreadyReconciled without mutating anything when
// the issue was debited before. Fails (rolling back the marker) when the
// organization has no client record with a configured budget.
func (r *ReconciliationRepository) RecordDebit(ctx context.Context, issueID, orgID string, amount float64) (*DebitResult, error) {
	result := &DebitResult{}

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO reconciliations (issue_id, organization_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (issue_id) DO NOTHING
		`, issueID, orgID, amount)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record reconciliation marker")
		}
		if tag.RowsAffected() == 0 {
			result.AlreadyReconciled = true
			return nil
		}

		err = tx.QueryRow(ctx, `
			UPDATE clients
			SET budget = budget - $2, updated_at = NOW()
			WHERE organization_id = $1 AND budget IS NOT NULL
			RETURNING budget
		`, orgID, amount).Scan(&result.NewBudget)
		if err == pgx.ErrNoRows {
			return errors.NotFound("client budget", "organization "+orgID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to debit budget")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetByIssueID returns the reconciliation marker for an issue, if any.
func (r *ReconciliationRepository) GetByIssueID(ctx context.Context, issueID string) (*Reconciliation, error) {
	query := `
		SELECT issue_id, organization_id, amount, reconciled_at
		FROM reconciliations
		WHERE issue_id = $1
	`

	rec := &Reconciliation{}
	err := r.db.QueryRow(ctx, query, issueID).Scan(
		&rec.IssueID,
		&rec.OrganizationID,
		&rec.Amount,
		&rec.ReconciledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("reconciliation", issueID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get reconciliation")
	}
	return rec, nil
}
