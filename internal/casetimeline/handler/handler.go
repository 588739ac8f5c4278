package handler

import (
	"context"
	"net/http"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/internal/casetimeline/transport"
	"case_timeline_backend/platform/httpkit"
	"case_timeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidCaseID    = "invalid case id"
)

// CaseService is the orchestrator surface the HTTP layer needs.
type CaseService interface {
	CreateCase(ctx context.Context, in orchestrator.NewCase, actorID *uuid.UUID) (domain.Case, error)
	GetCase(ctx context.Context, caseID uuid.UUID) (domain.Case, error)
	GetServiceFacts(ctx context.Context, caseID uuid.UUID) (domain.ServiceFacts, error)
	ConfirmServiceFacts(ctx context.Context, caseID uuid.UUID, facts domain.ServiceFacts, actorID *uuid.UUID) (orchestrator.RecomputeResult, error)
	RecomputeDeadlines(ctx context.Context, caseID uuid.UUID) (orchestrator.RecomputeResult, error)
	ConfirmDeadline(ctx context.Context, caseID uuid.UUID, in orchestrator.DeadlineConfirmation, actorID *uuid.UUID) (orchestrator.DeadlineResult, error)
	ListDeadlines(ctx context.Context, caseID uuid.UUID) ([]domain.Deadline, []domain.Reminder, error)
	ListTasks(ctx context.Context, caseID uuid.UUID) ([]domain.Task, error)
	EvaluateTasks(ctx context.Context, caseID uuid.UUID) (orchestrator.ApplyResult, error)
	UpdateTaskStatus(ctx context.Context, caseID uuid.UUID, taskKey string, to domain.TaskStatus, actorID *uuid.UUID) (orchestrator.TaskUpdateResult, error)
	RecordDocketOutcome(ctx context.Context, caseID uuid.UUID, outcome domain.DocketOutcome, actorID *uuid.UUID) (orchestrator.TaskUpdateResult, error)
	ListEscalations(ctx context.Context, caseID uuid.UUID) ([]domain.Escalation, error)
	AcknowledgeEscalation(ctx context.Context, caseID, escalationID uuid.UUID, actorID *uuid.UUID) (domain.Escalation, error)
	ListEvents(ctx context.Context, caseID uuid.UUID, limit int) ([]domain.CaseEvent, error)
}

// Handler handles HTTP requests for case timelines
type Handler struct {
	svc CaseService
	val *validator.Validator
}

// New creates a new case timeline handler
func New(svc CaseService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the case routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateCase)
	rg.GET("/:id", h.GetCase)
	rg.PUT("/:id/service-facts", h.ConfirmServiceFacts)
	rg.POST("/:id/deadlines/recompute", h.RecomputeDeadlines)
	rg.GET("/:id/deadlines", h.ListDeadlines)
	rg.PUT("/:id/deadlines/:key", h.ConfirmDeadline)
	rg.GET("/:id/tasks", h.ListTasks)
	rg.POST("/:id/tasks/evaluate", h.EvaluateTasks)
	rg.PATCH("/:id/tasks/:key/status", h.UpdateTaskStatus)
	rg.PUT("/:id/tasks/:key/outcome", h.RecordDocketOutcome)
	rg.GET("/:id/escalations", h.ListEscalations)
	rg.POST("/:id/escalations/:escalationId/acknowledge", h.AcknowledgeEscalation)
	rg.GET("/:id/events", h.ListEvents)
}

// actorOf returns the authenticated caller, or nil and aborts with 401.
func actorOf(c *gin.Context) (*uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return nil, false
	}
	id := identity.UserID()
	return &id, true
}

func parseCaseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCaseID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// bindJSON decodes and validates a request body, writing the 400 itself.
func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

// CreateCase handles POST /api/v1/cases
func (h *Handler) CreateCase(c *gin.Context) {
	var req transport.CreateCaseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	created, err := h.svc.CreateCase(c.Request.Context(), orchestrator.NewCase{
		Title:      req.Title,
		OwnerEmail: req.OwnerEmail,
		Timezone:   req.Timezone,
	}, actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToCaseResponse(created))
}

// GetCase handles GET /api/v1/cases/:id
func (h *Handler) GetCase(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	found, err := h.svc.GetCase(ctx, caseID)
	if httpkit.HandleError(c, err) {
		return
	}
	facts, err := h.svc.GetServiceFacts(ctx, caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToCaseDetailResponse(found, facts))
}

// ConfirmServiceFacts handles PUT /api/v1/cases/:id/service-facts
func (h *Handler) ConfirmServiceFacts(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	var req transport.ServiceFactsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	result, err := h.svc.ConfirmServiceFacts(c.Request.Context(), caseID, domain.ServiceFacts{
		ServedAt:      req.ServedAt,
		ReturnFiledAt: req.ReturnFiledAt,
	}, actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRecomputeResponse(result))
}

// RecomputeDeadlines handles POST /api/v1/cases/:id/deadlines/recompute
func (h *Handler) RecomputeDeadlines(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	result, err := h.svc.RecomputeDeadlines(c.Request.Context(), caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRecomputeResponse(result))
}

// ListDeadlines handles GET /api/v1/cases/:id/deadlines
func (h *Handler) ListDeadlines(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	ds, rs, err := h.svc.ListDeadlines(c.Request.Context(), caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToDeadlineResponses(ds, rs))
}

// ConfirmDeadline handles PUT /api/v1/cases/:id/deadlines/:key
func (h *Handler) ConfirmDeadline(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	var req transport.ConfirmDeadlineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	result, err := h.svc.ConfirmDeadline(c.Request.Context(), caseID, orchestrator.DeadlineConfirmation{
		Key:    c.Param("key"),
		DueAt:  req.DueAt,
		Source: domain.DeadlineSource(req.Source),
	}, actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToConfirmDeadlineResponse(result))
}

// ListTasks handles GET /api/v1/cases/:id/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	tasks, err := h.svc.ListTasks(c.Request.Context(), caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToTaskResponses(tasks))
}

// EvaluateTasks handles POST /api/v1/cases/:id/tasks/evaluate
func (h *Handler) EvaluateTasks(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	result, err := h.svc.EvaluateTasks(c.Request.Context(), caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToGatekeeperResponse(result))
}

// UpdateTaskStatus handles PATCH /api/v1/cases/:id/tasks/:key/status
func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	var req transport.UpdateTaskStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	result, err := h.svc.UpdateTaskStatus(c.Request.Context(), caseID, c.Param("key"), domain.TaskStatus(req.Status), actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToTaskUpdateResponse(result))
}

// RecordDocketOutcome handles PUT /api/v1/cases/:id/tasks/check_docket_for_answer/outcome.
// No other task carries an outcome.
func (h *Handler) RecordDocketOutcome(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	if c.Param("key") != domain.TaskCheckDocketForAnswer {
		httpkit.Error(c, http.StatusNotFound, "task has no outcome", nil)
		return
	}
	var req transport.DocketOutcomeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	result, err := h.svc.RecordDocketOutcome(c.Request.Context(), caseID, domain.DocketOutcome(req.Outcome), actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToTaskUpdateResponse(result))
}

// ListEscalations handles GET /api/v1/cases/:id/escalations
func (h *Handler) ListEscalations(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	es, err := h.svc.ListEscalations(c.Request.Context(), caseID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEscalationResponses(es))
}

// AcknowledgeEscalation handles POST /api/v1/cases/:id/escalations/:escalationId/acknowledge
func (h *Handler) AcknowledgeEscalation(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	escalationID, err := uuid.Parse(c.Param("escalationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid escalation id", nil)
		return
	}
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	esc, err := h.svc.AcknowledgeEscalation(c.Request.Context(), caseID, escalationID, actor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEscalationResponse(esc))
}

// ListEvents handles GET /api/v1/cases/:id/events
func (h *Handler) ListEvents(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	var req transport.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	es, err := h.svc.ListEvents(c.Request.Context(), caseID, req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToCaseEventResponses(es))
}
