package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-sd-budget/internal/database"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
)

// DecisionAuditRepository appends and reads immutable automation decision
// log entries.
type DecisionAuditRepository struct {
	db *database.DB
}

// NewDecisionAuditRepository creates a new DecisionAuditRepository.
func NewDecisionAuditRepository(db *database.DB) *DecisionAuditRepository {
	return &DecisionAuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *DecisionAuditRepository) Append(ctx context.Context, entry *DecisionAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO decision_audit_log
		    (issue_id, organization_id, outcome, reason,
		     estimated_cost, budget, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.IssueID,
		entry.OrganizationID,
		entry.Outcome,
		entry.Reason,
		entry.EstimatedCost,
		entry.Budget,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByIssueID returns the decision trail for an issue ordered oldest-first.
func (r *DecisionAuditRepository) GetByIssueID(ctx context.Context, issueID string) ([]*DecisionAuditEntry, error) {
	query := `
		SELECT id, issue_id, organization_id, outcome, reason,
		       estimated_cost, budget, metadata, performed_at
		FROM decision_audit_log
		WHERE issue_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, issueID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get decision audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByOrganization returns the decision trail for an organization,
// newest-first, bounded by limit.
func (r *DecisionAuditRepository) GetByOrganization(ctx context.Context, orgID string, limit int) ([]*DecisionAuditEntry, error) {
	query := `
		SELECT id, issue_id, organization_id, outcome, reason,
		       estimated_cost, budget, metadata, performed_at
		FROM decision_audit_log
		WHERE organization_id = $1
		ORDER BY performed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get decision audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *DecisionAuditRepository) scanRows(rows pgx.Rows) ([]*DecisionAuditEntry, error) {
	var entries []*DecisionAuditEntry
	for rows.Next() {
		entry := &DecisionAuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.IssueID,
			&entry.OrganizationID,
			&entry.Outcome,
			&entry.Reason,
			&entry.EstimatedCost,
			&entry.Budget,
			&metadataJSON,
			&entry.PerformedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
