package repository

import "time"

// ── Domain types for the client budget ledger ────────────────────────────────

// RequestTypePolicy is the per-client request-type permission policy stored
// as JSONB. Mode "allow_all" permits every request type; "allow_all_except"
// permits everything but ExceptIDs.
type RequestTypePolicy struct {
	Mode      string   `json:"mode"`
	ExceptIDs []string `json:"except_ids,omitempty"`
}

// ClientRecord is the persisted configuration and running ledger entry for a
// billing client, keyed by the tracker organization it is linked to.
type ClientRecord struct {
	ID             string
	OrganizationID string
	Name           string
	ServiceType    *string
	ValidFrom      *time.Time // contract validity window, inclusive calendar dates
	ValidTo        *time.Time
	Budget         *float64 // running balance; may go negative, nil = not configured
	PenaltyRate    *float64 // SLA penalty percent per breach hour, nil = no breach accounting
	RequestTypes   *RequestTypePolicy
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reconciliation is the exactly-once marker for a debited issue.
type Reconciliation struct {
	IssueID        string
	OrganizationID string
	Amount         float64
	ReconciledAt   time.Time
}

// DebitResult reports the outcome of an idempotent budget debit.
type DebitResult struct {
	AlreadyReconciled bool
	NewBudget         float64
}

// DecisionAuditEntry is one immutable record of an automation decision.
type DecisionAuditEntry struct {
	ID             string
	IssueID        string
	OrganizationID *string
	Outcome        string // approved | rejected | manual_review | reconciled | skipped
	Reason         *string
	EstimatedCost  *float64
	Budget         *float64
	Metadata       map[string]interface{}
	PerformedAt    time.Time
}
