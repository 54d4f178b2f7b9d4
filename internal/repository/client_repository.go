package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-sd-budget/internal/database"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
)

const uniqueViolation = "23505"

// ClientRepository persists client budget records. Records are keyed by
// organization ID with a unique index, so automation lookups are a single
// indexed read and a second client for the same organization is rejected at
// write time instead of silently shadowed at read time.
type ClientRepository struct {
	db *database.DB
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(db *database.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create inserts a new client record.
func (r *ClientRepository) Create(ctx context.Context, rec *ClientRecord) error {
	policyJSON, err := marshalPolicy(rec.RequestTypes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clients
		    (id, organization_id, name, service_type,
		     valid_from, valid_to, budget, penalty_rate_per_hour,
		     request_type_policy)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8,
		        $9)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rec.ID,
		rec.OrganizationID,
		rec.Name,
		rec.ServiceType,
		rec.ValidFrom,
		rec.ValidTo,
		rec.Budget,
		rec.PenaltyRate,
		policyJSON,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.New(errors.ErrCodeConflict,
			"a client already exists for organization "+rec.OrganizationID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create client")
	}
	return nil
}

// GetByOrganization retrieves the client linked to a tracker organization.
func (r *ClientRepository) GetByOrganization(ctx context.Context, orgID string) (*ClientRecord, error) {
	query := selectClients + ` WHERE organization_id = $1`

	rec, err := r.scanClient(r.db.QueryRow(ctx, query, orgID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("client", "organization "+orgID)
	}
	return rec, err
}

// GetByID retrieves a client record by primary key.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*ClientRecord, error) {
	query := selectClients + ` WHERE id = $1`

	rec, err := r.scanClient(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("client", id)
	}
	return rec, err
}

// List returns a page of client records ordered by name, plus the total count.
func (r *ClientRepository) List(ctx context.Context, limit, offset int) ([]*ClientRecord, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count clients")
	}

	query := selectClients + ` ORDER BY name ASC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list clients")
	}
	defer rows.Close()

	var records []*ClientRecord
	for rows.Next() {
		rec, err := r.scanClient(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan client")
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// Update overwrites the mutable attributes of a client record.
func (r *ClientRepository) Update(ctx context.Context, rec *ClientRecord) error {
	policyJSON, err := marshalPolicy(rec.RequestTypes)
	if err != nil {
		return err
	}

	query := `
		UPDATE clients
		SET name                  = $2,
		    service_type          = $3,
		    valid_from            = $4,
		    valid_to              = $5,
		    budget                = $6,
		    penalty_rate_per_hour = $7,
		    request_type_policy   = $8,
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rec.ID,
		rec.Name,
		rec.ServiceType,
		rec.ValidFrom,
		rec.ValidTo,
		rec.Budget,
		rec.PenaltyRate,
		policyJSON,
	).Scan(&rec.UpdatedAt)

	if err == pgx.ErrNoRows {
		return errors.NotFound("client", rec.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update client")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectClients = `
	SELECT id, organization_id, name, service_type,
	       valid_from, valid_to, budget, penalty_rate_per_hour,
	       request_type_policy, created_at, updated_at
	FROM clients`

type clientScanner interface {
	Scan(dest ...any) error
}

func (r *ClientRepository) scanClient(row clientScanner) (*ClientRecord, error) {
	rec := &ClientRecord{}
	var policyJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.OrganizationID,
		&rec.Name,
		&rec.ServiceType,
		&rec.ValidFrom,
		&rec.ValidTo,
		&rec.Budget,
		&rec.PenaltyRate,
		&policyJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if policyJSON != nil {
		rec.RequestTypes = &RequestTypePolicy{}
		if err := json.Unmarshal(policyJSON, rec.RequestTypes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal request type policy")
		}
	}
	return rec, nil
}

func marshalPolicy(policy *RequestTypePolicy) ([]byte, error) {
	if policy == nil {
		return nil, nil
	}
	data, err := json.Marshal(policy)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request type policy")
	}
	return data, nil
}
