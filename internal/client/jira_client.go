package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pesio-ai/be-sd-budget/internal/errors"
)

// JiraClient is the gateway to the issue tracker: issue reads, field writes,
// workflow transitions, SLA status and the customer organization directory.
type JiraClient struct {
	baseURL  string
	email    string
	apiToken string
	http     *http.Client
}

// Config holds the tracker connection settings.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	Timeout  time.Duration
}

// NewJiraClient creates a tracker gateway using basic auth.
func NewJiraClient(cfg Config) *JiraClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JiraClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		http:     &http.Client{Timeout: timeout},
	}
}

// GetIssue fetches a fresh snapshot of an issue.
func (c *JiraClient) GetIssue(ctx context.Context, issueID string) (*Issue, error) {
	issue := &Issue{}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/issue/"+issueID, nil, issue); err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", issueID, err)
	}
	return issue, nil
}

// ListTransitions returns the workflow transitions currently available on an issue.
func (c *JiraClient) ListTransitions(ctx context.Context, issueID string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/issue/"+issueID+"/transitions", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list transitions for issue %s: %w", issueID, err)
	}
	return resp.Transitions, nil
}

// ExecuteTransition moves an issue through the given workflow transition.
func (c *JiraClient) ExecuteTransition(ctx context.Context, issueID, transitionID string) error {
	body := map[string]any{
		"transition": map[string]string{"id": transitionID},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/3/issue/"+issueID+"/transitions", body, nil); err != nil {
		return fmt.Errorf("failed to execute transition %s on issue %s: %w", transitionID, issueID, err)
	}
	return nil
}

// UpdateField writes a single custom field value on an issue.
func (c *JiraClient) UpdateField(ctx context.Context, issueID, fieldID string, value any) error {
	body := map[string]any{
		"fields": map[string]any{fieldID: value},
	}
	if err := c.doJSON(ctx, http.MethodPut, "/rest/api/3/issue/"+issueID, body, nil); err != nil {
		return fmt.Errorf("failed to update field %s on issue %s: %w", fieldID, issueID, err)
	}
	return nil
}

// GetSLAStatus returns the breach state of the named SLA metric for an issue.
// An issue without that metric, or without an ongoing cycle, reports no breach.
func (c *JiraClient) GetSLAStatus(ctx context.Context, issueID, metricName string) (*SLAStatus, error) {
	var resp struct {
		Values []struct {
			Name         string `json:"name"`
			OngoingCycle *struct {
				Breached      bool `json:"breached"`
				RemainingTime struct {
					Millis int64 `json:"millis"`
				} `json:"remainingTime"`
			} `json:"ongoingCycle"`
		} `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/servicedeskapi/request/"+issueID+"/sla", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get SLA status for issue %s: %w", issueID, err)
	}

	for _, sla := range resp.Values {
		if !strings.Contains(sla.Name, metricName) || sla.OngoingCycle == nil {
			continue
		}
		return &SLAStatus{
			Breached:        sla.OngoingCycle.Breached,
			RemainingMillis: sla.OngoingCycle.RemainingTime.Millis,
		}, nil
	}
	return &SLAStatus{}, nil
}

// CreateOrganization creates a customer organization in the tracker directory.
func (c *JiraClient) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{}
	body := map[string]string{"name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/servicedeskapi/organization", body, org); err != nil {
		return nil, fmt.Errorf("failed to create organization %q: %w", name, err)
	}
	return org, nil
}

// ListServiceDeskProjects returns all projects of type service_desk.
func (c *JiraClient) ListServiceDeskProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Values []Project `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/project/search", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var projects []Project
	for _, p := range resp.Values {
		if p.ProjectTypeKey == "service_desk" {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

// AddOrganizationToServiceDesk associates an organization with a service desk.
func (c *JiraClient) AddOrganizationToServiceDesk(ctx context.Context, serviceDeskID, orgID string) error {
	body := map[string]string{"organizationId": orgID}
	path := "/rest/servicedeskapi/servicedesk/" + serviceDeskID + "/organization"
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to associate organization %s with service desk %s: %w", orgID, serviceDeskID, err)
	}
	return nil
}

// ListServiceDesks returns all service desks in the instance.
func (c *JiraClient) ListServiceDesks(ctx context.Context) ([]ServiceDesk, error) {
	var resp struct {
		Values []ServiceDesk `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/servicedeskapi/servicedesk", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list service desks: %w", err)
	}
	return resp.Values, nil
}

// ListRequestTypes returns the request types of one service desk.
func (c *JiraClient) ListRequestTypes(ctx context.Context, serviceDeskID string) ([]RequestType, error) {
	var resp struct {
		Values []RequestType `json:"values"`
	}
	path := "/rest/servicedeskapi/servicedesk/" + serviceDeskID + "/requesttype"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list request types for service desk %s: %w", serviceDeskID, err)
	}
	return resp.Values, nil
}

// doJSON performs one authenticated JSON request. Non-2xx responses become
// UPSTREAM errors carrying the response body.
func (c *JiraClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.email != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUpstream, "tracker request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.New(errors.ErrCodeUpstream,
			fmt.Sprintf("tracker returned %d for %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(text))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeUpstream, "failed to decode tracker response")
	}
	return nil
}
