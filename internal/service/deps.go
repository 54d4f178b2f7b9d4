package service

import (
	"context"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

// TicketGateway is the issue-tracker boundary the automation acts through.
// Implemented by client.JiraClient.
type TicketGateway interface {
	GetIssue(ctx context.Context, issueID string) (*client.Issue, error)
	ListTransitions(ctx context.Context, issueID string) ([]client.Transition, error)
	ExecuteTransition(ctx context.Context, issueID, transitionID string) error
	UpdateField(ctx context.Context, issueID, fieldID string, value any) error
	GetSLAStatus(ctx context.Context, issueID, metricName string) (*client.SLAStatus, error)
}

// Directory is the tracker's customer organization directory and service
// desk catalog. Implemented by client.JiraClient.
type Directory interface {
	CreateOrganization(ctx context.Context, name string) (*client.Organization, error)
	ListServiceDeskProjects(ctx context.Context) ([]client.Project, error)
	AddOrganizationToServiceDesk(ctx context.Context, serviceDeskID, orgID string) error
	ListServiceDesks(ctx context.Context) ([]client.ServiceDesk, error)
	ListRequestTypes(ctx context.Context, serviceDeskID string) ([]client.RequestType, error)
}

// ClientStore is the client ledger accessor.
// Implemented by repository.ClientRepository.
type ClientStore interface {
	Create(ctx context.Context, rec *repository.ClientRecord) error
	GetByOrganization(ctx context.Context, orgID string) (*repository.ClientRecord, error)
	GetByID(ctx context.Context, id string) (*repository.ClientRecord, error)
	List(ctx context.Context, limit, offset int) ([]*repository.ClientRecord, int64, error)
	Update(ctx context.Context, rec *repository.ClientRecord) error
}

// LedgerStore performs the exactly-once budget debit.
// Implemented by repository.ReconciliationRepository.
type LedgerStore interface {
	RecordDebit(ctx context.Context, issueID, orgID string, amount float64) (*repository.DebitResult, error)
}

// DecisionAuditStore records automation outcomes.
// Implemented by repository.DecisionAuditRepository.
type DecisionAuditStore interface {
	Append(ctx context.Context, entry *repository.DecisionAuditEntry) error
	GetByIssueID(ctx context.Context, issueID string) ([]*repository.DecisionAuditEntry, error)
}
