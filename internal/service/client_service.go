package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
)

// ClientService handles client onboarding and administration for the
// customer admin UI.
type ClientService struct {
	clients   ClientStore
	directory Directory
	log       zerolog.Logger
}

// NewClientService creates a new ClientService.
func NewClientService(clients ClientStore, directory Directory, log zerolog.Logger) *ClientService {
	return &ClientService{
		clients:   clients,
		directory: directory,
		log:       log,
	}
}

// CreateClientRequest represents a create client request. Dates use
// YYYY-MM-DD.
type CreateClientRequest struct {
	Name         string                        `json:"name"`
	ServiceType  *string                       `json:"service_type"`
	ValidFrom    string                        `json:"valid_from"`
	ValidTo      string                        `json:"valid_to"`
	Budget       *float64                      `json:"budget"`
	PenaltyRate  *float64                      `json:"penalty_rate_per_hour"`
	RequestTypes *repository.RequestTypePolicy `json:"request_type_policy"`
}

// UpdateClientRequest represents an update to an existing client.
type UpdateClientRequest struct {
	ID           string                        `json:"id"`
	Name         string                        `json:"name"`
	ServiceType  *string                       `json:"service_type"`
	ValidFrom    string                        `json:"valid_from"`
	ValidTo      string                        `json:"valid_to"`
	Budget       *float64                      `json:"budget"`
	PenaltyRate  *float64                      `json:"penalty_rate_per_hour"`
	RequestTypes *repository.RequestTypePolicy `json:"request_type_policy"`
}

// CreateClient onboards a new billing client: a customer organization is
// created in the tracker directory, associated with every service desk
// project, and the client record is persisted against that organization.
// Per-project association failures are logged and skipped; they do not fail
// onboarding.
func (s *ClientService) CreateClient(ctx context.Context, req *CreateClientRequest) (*repository.ClientRecord, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}

	validFrom, err := parseDate("valid_from", req.ValidFrom)
	if err != nil {
		return nil, err
	}
	validTo, err := parseDate("valid_to", req.ValidTo)
	if err != nil {
		return nil, err
	}

	org, err := s.directory.CreateOrganization(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to create organization in tracker")
	}
	s.associateWithServiceDesks(ctx, org)

	rec := &repository.ClientRecord{
		ID:             uuid.NewString(),
		OrganizationID: org.ID.String(),
		Name:           name,
		ServiceType:    req.ServiceType,
		ValidFrom:      validFrom,
		ValidTo:        validTo,
		Budget:         req.Budget,
		PenaltyRate:    req.PenaltyRate,
		RequestTypes:   req.RequestTypes,
	}

	if err := s.clients.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("client_id", rec.ID).
		Str("organization_id", rec.OrganizationID).
		Str("name", rec.Name).
		Msg("Client created")

	return rec, nil
}

// associateWithServiceDesks links a new organization to every service desk
// project so its requests are visible everywhere.
func (s *ClientService) associateWithServiceDesks(ctx context.Context, org *client.Organization) {
	projects, err := s.directory.ListServiceDeskProjects(ctx)
	if err != nil {
		s.log.Warn().Err(err).
			Str("organization_id", org.ID.String()).
			Msg("Could not list service desk projects; organization left unassociated")
		return
	}

	for _, project := range projects {
		if err := s.directory.AddOrganizationToServiceDesk(ctx, project.ID.String(), org.ID.String()); err != nil {
			s.log.Warn().Err(err).
				Str("organization_id", org.ID.String()).
				Str("project", project.Name).
				Msg("Failed to associate organization with project")
		}
	}
}

// UpdateClient overwrites the mutable attributes of a client record. The
// organization link is immutable.
func (s *ClientService) UpdateClient(ctx context.Context, req *UpdateClientRequest) (*repository.ClientRecord, error) {
	rec, err := s.clients.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	validFrom, err := parseDate("valid_from", req.ValidFrom)
	if err != nil {
		return nil, err
	}
	validTo, err := parseDate("valid_to", req.ValidTo)
	if err != nil {
		return nil, err
	}

	rec.Name = name
	rec.ServiceType = req.ServiceType
	rec.ValidFrom = validFrom
	rec.ValidTo = validTo
	rec.Budget = req.Budget
	rec.PenaltyRate = req.PenaltyRate
	rec.RequestTypes = req.RequestTypes

	if err := s.clients.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("client_id", rec.ID).
		Str("name", rec.Name).
		Msg("Client updated")

	return rec, nil
}

// GetClient retrieves a client record by ID.
func (s *ClientService) GetClient(ctx context.Context, id string) (*repository.ClientRecord, error) {
	return s.clients.GetByID(ctx, id)
}

// ListClients lists client records with pagination.
func (s *ClientService) ListClients(ctx context.Context, page, pageSize int) ([]*repository.ClientRecord, int64, error) {
	offset := (page - 1) * pageSize
	return s.clients.List(ctx, pageSize, offset)
}

// ListRequestTypes returns every request type across all service desks,
// flattened and annotated with the owning project. Service desks that fail
// to answer are logged and skipped.
func (s *ClientService) ListRequestTypes(ctx context.Context) ([]client.RequestType, error) {
	desks, err := s.directory.ListServiceDesks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to list service desks")
	}

	var all []client.RequestType
	for _, desk := range desks {
		types, err := s.directory.ListRequestTypes(ctx, desk.ID.String())
		if err != nil {
			s.log.Warn().Err(err).
				Str("service_desk_id", desk.ID.String()).
				Msg("Could not list request types for service desk")
			continue
		}
		for _, rt := range types {
			rt.ProjectID = desk.ProjectID.String()
			rt.ProjectKey = desk.ProjectKey
			all = append(all, rt)
		}
	}
	return all, nil
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errors.InvalidInput(field, "invalid date format, expected YYYY-MM-DD")
	}
	return &parsed, nil
}
