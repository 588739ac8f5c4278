package transport

import (
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/orchestrator"

	"github.com/google/uuid"
)

// CreateCaseRequest is the request body for creating a case
type CreateCaseRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=200"`
	OwnerEmail string `json:"ownerEmail" validate:"required,email,max=320"`
	Timezone   string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// ServiceFactsRequest is the request body for confirming service facts.
// Dates are calendar dates (YYYY-MM-DD) on the case's calendar.
type ServiceFactsRequest struct {
	ServedAt      *domain.LocalDate `json:"servedAt"`
	ReturnFiledAt *domain.LocalDate `json:"returnFiledAt"`
}

// ConfirmDeadlineRequest records a deadline confirmed outside the calculator
type ConfirmDeadlineRequest struct {
	DueAt  time.Time `json:"dueAt" validate:"required"`
	Source string    `json:"source" validate:"required,deadline_source"`
}

// UpdateTaskStatusRequest is the request body for a user-driven task transition
type UpdateTaskStatusRequest struct {
	Status string `json:"status" validate:"required,task_status"`
}

// DocketOutcomeRequest is the request body for recording the docket check result
type DocketOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,docket_outcome"`
}

// ListEventsRequest is the query for the case audit log
type ListEventsRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

type CaseResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	OwnerEmail string    `json:"ownerEmail"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ServiceFactsResponse struct {
	ServedAt      *domain.LocalDate `json:"servedAt"`
	ReturnFiledAt *domain.LocalDate `json:"returnFiledAt"`
}

type CaseDetailResponse struct {
	CaseResponse
	ServiceFacts ServiceFactsResponse `json:"serviceFacts"`
}

type ReminderResponse struct {
	ID        uuid.UUID `json:"id"`
	Channel   string    `json:"channel"`
	SendAt    time.Time `json:"sendAt"`
	Status    string    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
}

type DeadlineResponse struct {
	ID          uuid.UUID          `json:"id"`
	Key         string             `json:"key"`
	DueAt       time.Time          `json:"dueAt"`
	Source      string             `json:"source"`
	Rationale   string             `json:"rationale"`
	CalcVersion string             `json:"calcVersion,omitempty"`
	Reminders   []ReminderResponse `json:"reminders"`
}

type TaskResponse struct {
	ID            uuid.UUID  `json:"id"`
	Key           string     `json:"key"`
	Status        string     `json:"status"`
	DueAt         *time.Time `json:"dueAt,omitempty"`
	DocketOutcome string     `json:"docketOutcome,omitempty"`
	Transitions   []string   `json:"allowedTransitions"`
}

type EscalationResponse struct {
	ID             uuid.UUID  `json:"id"`
	DeadlineID     uuid.UUID  `json:"deadlineId"`
	Level          int        `json:"level"`
	Message        string     `json:"message"`
	TriggeredAt    time.Time  `json:"triggeredAt"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

type CaseEventResponse struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	Subject   string         `json:"subject,omitempty"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type ActionResponse struct {
	Kind    string `json:"kind"`
	TaskKey string `json:"taskKey"`
	Rule    string `json:"rule"`
}

type ActionErrorResponse struct {
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}

// GatekeeperResponse reports the task changes that followed a mutation
type GatekeeperResponse struct {
	Applied []ActionResponse      `json:"applied"`
	Skipped []ActionResponse      `json:"skipped"`
	Errors  []ActionErrorResponse `json:"errors"`
}

type RecomputeResponse struct {
	Deadlines []DeadlineResponse    `json:"deadlines"`
	Tasks     GatekeeperResponse    `json:"tasks"`
	Warnings  []ActionErrorResponse `json:"warnings"`
}

type ConfirmDeadlineResponse struct {
	Deadline DeadlineResponse      `json:"deadline"`
	Tasks    GatekeeperResponse    `json:"tasks"`
	Warnings []ActionErrorResponse `json:"warnings"`
}

type TaskUpdateResponse struct {
	Task     TaskResponse          `json:"task"`
	Tasks    GatekeeperResponse    `json:"tasks"`
	Warnings []ActionErrorResponse `json:"warnings"`
}

func ToCaseResponse(c domain.Case) CaseResponse {
	return CaseResponse{
		ID:         c.ID,
		Title:      c.Title,
		OwnerEmail: c.OwnerEmail,
		Timezone:   c.Timezone,
		CreatedAt:  c.CreatedAt,
	}
}

func ToCaseDetailResponse(c domain.Case, facts domain.ServiceFacts) CaseDetailResponse {
	return CaseDetailResponse{
		CaseResponse: ToCaseResponse(c),
		ServiceFacts: ServiceFactsResponse{ServedAt: facts.ServedAt, ReturnFiledAt: facts.ReturnFiledAt},
	}
}

// ToDeadlineResponses attaches each reminder to its deadline.
func ToDeadlineResponses(ds []domain.Deadline, rs []domain.Reminder) []DeadlineResponse {
	byDeadline := make(map[uuid.UUID][]ReminderResponse, len(ds))
	for _, r := range rs {
		byDeadline[r.DeadlineID] = append(byDeadline[r.DeadlineID], toReminderResponse(r))
	}

	out := make([]DeadlineResponse, 0, len(ds))
	for _, d := range ds {
		reminders := byDeadline[d.ID]
		if reminders == nil {
			reminders = []ReminderResponse{}
		}
		out = append(out, DeadlineResponse{
			ID:          d.ID,
			Key:         d.Key,
			DueAt:       d.DueAt,
			Source:      string(d.Source),
			Rationale:   d.Rationale,
			CalcVersion: d.CalcVersion,
			Reminders:   reminders,
		})
	}
	return out
}

func toReminderResponse(r domain.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:        r.ID,
		Channel:   r.Channel,
		SendAt:    r.SendAt,
		Status:    string(r.Status),
		LastError: r.LastError,
	}
}

func ToTaskResponse(t domain.Task) TaskResponse {
	allowed := domain.AllowedTransitions(t.Status)
	transitions := make([]string, 0, len(allowed))
	for _, s := range allowed {
		transitions = append(transitions, string(s))
	}
	return TaskResponse{
		ID:            t.ID,
		Key:           t.Key,
		Status:        string(t.Status),
		DueAt:         t.DueAt,
		DocketOutcome: string(t.Metadata.DocketOutcome),
		Transitions:   transitions,
	}
}

func ToTaskResponses(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskResponse(t))
	}
	return out
}

func ToEscalationResponse(e domain.Escalation) EscalationResponse {
	return EscalationResponse{
		ID:             e.ID,
		DeadlineID:     e.DeadlineID,
		Level:          e.Level,
		Message:        e.Message,
		TriggeredAt:    e.TriggeredAt,
		Acknowledged:   e.Acknowledged,
		AcknowledgedAt: e.AcknowledgedAt,
	}
}

func ToEscalationResponses(es []domain.Escalation) []EscalationResponse {
	out := make([]EscalationResponse, 0, len(es))
	for _, e := range es {
		out = append(out, ToEscalationResponse(e))
	}
	return out
}

func ToCaseEventResponses(es []domain.CaseEvent) []CaseEventResponse {
	out := make([]CaseEventResponse, 0, len(es))
	for _, e := range es {
		out = append(out, CaseEventResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Subject:   e.Subject,
			ActorID:   e.ActorID,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func ToGatekeeperResponse(r orchestrator.ApplyResult) GatekeeperResponse {
	return GatekeeperResponse{
		Applied: toActionResponses(r.Applied),
		Skipped: toActionResponses(r.Skipped),
		Errors:  toActionErrors(r.Errors),
	}
}

func toActionResponses(outcomes []orchestrator.ActionOutcome) []ActionResponse {
	out := make([]ActionResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, ActionResponse{Kind: o.Kind, TaskKey: o.TaskKey, Rule: o.Rule})
	}
	return out
}

// Error text is exposed here because these are partial failures the caller
// may want to retry; the request itself succeeded.
func toActionErrors(errs []*orchestrator.OrchestrationError) []ActionErrorResponse {
	out := make([]ActionErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, ActionErrorResponse{Op: e.Op, Target: e.Target, Error: e.Err.Error()})
	}
	return out
}

func ToRecomputeResponse(r orchestrator.RecomputeResult) RecomputeResponse {
	return RecomputeResponse{
		Deadlines: ToDeadlineResponses(r.Deadlines, r.Reminders),
		Tasks:     ToGatekeeperResponse(r.Tasks),
		Warnings:  toActionErrors(r.Errors),
	}
}

func ToConfirmDeadlineResponse(r orchestrator.DeadlineResult) ConfirmDeadlineResponse {
	ds := ToDeadlineResponses([]domain.Deadline{r.Deadline}, r.Reminders)
	return ConfirmDeadlineResponse{
		Deadline: ds[0],
		Tasks:    ToGatekeeperResponse(r.Tasks),
		Warnings: toActionErrors(r.Errors),
	}
}

func ToTaskUpdateResponse(r orchestrator.TaskUpdateResult) TaskUpdateResponse {
	return TaskUpdateResponse{
		Task:     ToTaskResponse(r.Task),
		Tasks:    ToGatekeeperResponse(r.Tasks),
		Warnings: toActionErrors(r.Errors),
	}
}
