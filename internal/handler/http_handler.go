package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/errors"
	"github.com/pesio-ai/be-sd-budget/internal/service"
)

// HTTPHandler handles HTTP requests: the lifecycle event webhook, the manual
// recompute trigger and the client admin API.
type HTTPHandler struct {
	decisions  *service.DecisionService
	reconciler *service.ReconcilerService
	penalty    *service.PenaltyService
	clients    *service.ClientService
	cfg        *config.Config
	log        zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	decisions *service.DecisionService,
	reconciler *service.ReconcilerService,
	penalty *service.PenaltyService,
	clients *service.ClientService,
	cfg *config.Config,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		decisions:  decisions,
		reconciler: reconciler,
		penalty:    penalty,
		clients:    clients,
		cfg:        cfg,
		log:        log,
	}
}

// IssueEvent handles issue lifecycle webhooks. The new status routes the
// event: the review status triggers the approval decision pass, a terminal
// resolved status triggers budget reconciliation, anything else is
// acknowledged and ignored. Processing failures are internal policy (the
// automation degrades to manual review or a logged no-op), so the webhook
// always acknowledges an accepted event.
func (h *HTTPHandler) IssueEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event struct {
		Issue client.Issue `json:"issue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if event.Issue.ID == "" {
		http.Error(w, "issue.id is required", http.StatusBadRequest)
		return
	}

	status := event.Issue.StatusName()
	switch {
	case strings.EqualFold(status, h.cfg.Automation.ReviewStatus):
		decision, err := h.decisions.ProcessReview(r.Context(), event.Issue.ID)
		if err != nil {
			h.log.Error().Err(err).Str("issue_id", event.Issue.ID).Msg("Review processing aborted")
			writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "processed", "decision": decision})

	case h.isResolvedStatus(status):
		result, err := h.reconciler.ProcessResolution(r.Context(), event.Issue.ID)
		if err != nil {
			h.log.Error().Err(err).Str("issue_id", event.Issue.ID).Msg("Reconciliation aborted")
			writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "processed", "reconciliation": result})

	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

// RecalculateCosts handles the manual recompute trigger: penalty and total
// cost are recomputed and written back, no transition is executed.
func (h *HTTPHandler) RecalculateCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		IssueID string `json:"issue_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IssueID == "" {
		http.Error(w, "issue_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.penalty.RecalculateCosts(r.Context(), req.IssueID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"base_cost":          result.BaseCost,
		"penalty_percentage": result.Penalty.Percentage,
		"final_cost":         result.Penalty.FinalCost,
		"failed_writes":      result.FailedWrites(),
	})
}

// CreateClient handles create client HTTP requests.
func (h *HTTPHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.clients.CreateClient(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateClient handles update client HTTP requests.
func (h *HTTPHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	rec, err := h.clients.UpdateClient(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetClient handles get client HTTP requests.
func (h *HTTPHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Client ID is required", http.StatusBadRequest)
		return
	}

	rec, err := h.clients.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListClients handles list clients HTTP requests.
func (h *HTTPHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	records, total, err := h.clients.ListClients(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clients":  records,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// ListRequestTypes handles the flattened request type catalog.
func (h *HTTPHandler) ListRequestTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	types, err := h.clients.ListRequestTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_types": types})
}

// DecisionHistory returns the automation decision trail for an issue.
func (h *HTTPHandler) DecisionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issueID := r.URL.Query().Get("issue_id")
	if issueID == "" {
		http.Error(w, "issue_id is required", http.StatusBadRequest)
		return
	}

	entries, err := h.decisions.GetDecisionHistory(r.Context(), issueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *HTTPHandler) isResolvedStatus(status string) bool {
	for _, resolved := range h.cfg.Automation.ResolvedStatuses {
		if strings.EqualFold(status, resolved) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case errors.ErrCodeUpstream:
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
