package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository. Hooks let tests inject failures.
type fakeRepo struct {
	mu          sync.Mutex
	cases       map[uuid.UUID]domain.Case
	facts       map[uuid.UUID]domain.ServiceFacts
	deadlines   map[uuid.UUID]domain.Deadline
	reminders   map[uuid.UUID]domain.Reminder
	tasks       map[uuid.UUID][]domain.Task
	escalations []domain.Escalation
	events      []domain.CaseEvent

	transitionHook     func(caseID uuid.UUID, key string) (handled bool, ok bool, err error)
	listEscalationsErr map[uuid.UUID]error
	appendEventErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		cases:     make(map[uuid.UUID]domain.Case),
		facts:     make(map[uuid.UUID]domain.ServiceFacts),
		deadlines: make(map[uuid.UUID]domain.Deadline),
		reminders: make(map[uuid.UUID]domain.Reminder),
		tasks:     make(map[uuid.UUID][]domain.Task),
	}
}

func (r *fakeRepo) CreateCase(_ context.Context, c domain.Case, plan []domain.TaskSeed, created domain.CaseEvent) (domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
	r.events = append(r.events, created)
	for _, seed := range plan {
		r.tasks[c.ID] = append(r.tasks[c.ID], domain.Task{ID: uuid.New(), CaseID: c.ID, Key: seed.Key, Status: seed.Status})
	}
	return c, nil
}

func (r *fakeRepo) GetCase(_ context.Context, caseID uuid.UUID) (domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[caseID]
	if !ok {
		return domain.Case{}, apperr.NotFound("case not found")
	}
	return c, nil
}

func (r *fakeRepo) ListActiveCaseIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, ts := range r.tasks {
		for _, t := range ts {
			if t.Status != domain.StatusCompleted && t.Status != domain.StatusSkipped {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (r *fakeRepo) GetServiceFacts(_ context.Context, caseID uuid.UUID) (domain.ServiceFacts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facts[caseID], nil
}

func (r *fakeRepo) UpsertServiceFacts(_ context.Context, caseID uuid.UUID, facts domain.ServiceFacts, _ *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[caseID] = facts
	return nil
}

func (r *fakeRepo) insertDeadline(w domain.DeadlineWrite) (domain.Deadline, []domain.Reminder) {
	d := domain.Deadline{
		ID: uuid.New(), CaseID: w.CaseID, Key: w.Key, DueAt: w.DueAt,
		Source: w.Source, Rationale: w.Rationale, CalcVersion: w.CalcVersion,
	}
	r.deadlines[d.ID] = d
	return d, r.insertReminders(d.ID, w.ReminderChannel, w.ReminderSends)
}

func (r *fakeRepo) insertReminders(deadlineID uuid.UUID, channel string, sends []time.Time) []domain.Reminder {
	rs := make([]domain.Reminder, 0, len(sends))
	for _, at := range sends {
		rem := domain.Reminder{ID: uuid.New(), DeadlineID: deadlineID, Channel: channel, SendAt: at, Status: domain.ReminderPending}
		r.reminders[rem.ID] = rem
		rs = append(rs, rem)
	}
	return rs
}

func (r *fakeRepo) syncReminders(deadlineID uuid.UUID, w domain.DeadlineWrite) []domain.Reminder {
	var stored []domain.Reminder
	for _, rem := range r.reminders {
		if rem.DeadlineID == deadlineID {
			stored = append(stored, rem)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].SendAt.Before(stored[j].SendAt) })

	plan := domain.PlanReminders(stored, w.ReminderChannel, w.ReminderSends)
	for _, id := range plan.Stale {
		delete(r.reminders, id)
	}
	return append(plan.Kept, r.insertReminders(deadlineID, w.ReminderChannel, plan.Missing)...)
}

func (r *fakeRepo) deleteDeadline(id uuid.UUID) {
	delete(r.deadlines, id)
	for rid, rem := range r.reminders {
		if rem.DeadlineID == id {
			delete(r.reminders, rid)
		}
	}
	kept := r.escalations[:0]
	for _, e := range r.escalations {
		if e.DeadlineID != id {
			kept = append(kept, e)
		}
	}
	r.escalations = kept
}

func (r *fakeRepo) ReplaceSystemDeadlines(_ context.Context, caseID uuid.UUID, writes []domain.DeadlineWrite) ([]domain.Deadline, []domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stored []domain.Deadline
	for _, d := range r.deadlines {
		if d.CaseID == caseID && d.Source == domain.SourceSystem {
			stored = append(stored, d)
		}
	}

	plan := domain.PlanSystemDeadlines(stored, writes)
	for _, id := range plan.Stale {
		r.deleteDeadline(id)
	}
	var ds []domain.Deadline
	var rs []domain.Reminder
	for i, w := range writes {
		if d, ok := plan.Kept[i]; ok {
			d.Rationale = w.Rationale
			d.CalcVersion = w.CalcVersion
			r.deadlines[d.ID] = d
			ds = append(ds, d)
			rs = append(rs, r.syncReminders(d.ID, w)...)
			continue
		}
		d, rems := r.insertDeadline(w)
		ds = append(ds, d)
		rs = append(rs, rems...)
	}
	return ds, rs, nil
}

func (r *fakeRepo) UpsertConfirmedDeadline(_ context.Context, w domain.DeadlineWrite) (domain.Deadline, []domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.deadlines {
		if d.CaseID == w.CaseID && d.Key == w.Key && d.Source == w.Source {
			d.DueAt = w.DueAt
			d.Rationale = w.Rationale
			r.deadlines[id] = d
			return d, r.syncReminders(id, w), nil
		}
	}
	d, rs := r.insertDeadline(w)
	return d, rs, nil
}

func (r *fakeRepo) ListDeadlines(_ context.Context, caseID uuid.UUID) ([]domain.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deadline
	for _, d := range r.deadlines {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *fakeRepo) ListDeadlinesDueBetween(_ context.Context, from, to time.Time) ([]domain.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deadline
	for _, d := range r.deadlines {
		if !d.DueAt.Before(from) && !d.DueAt.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListReminders(_ context.Context, caseID uuid.UUID) ([]domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Reminder
	for _, rem := range r.reminders {
		if r.deadlines[rem.DeadlineID].CaseID == caseID {
			out = append(out, rem)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetReminderDispatch(_ context.Context, reminderID uuid.UUID) (domain.ReminderDispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[reminderID]
	if !ok {
		return domain.ReminderDispatch{}, apperr.NotFound("reminder not found")
	}
	d := r.deadlines[rem.DeadlineID]
	return domain.ReminderDispatch{Reminder: rem, Deadline: d, Case: r.cases[d.CaseID]}, nil
}

func (r *fakeRepo) MarkReminder(_ context.Context, reminderID uuid.UUID, status domain.ReminderStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[reminderID]
	if !ok {
		return apperr.NotFound("reminder not found")
	}
	rem.Status = status
	rem.LastError = lastError
	r.reminders[reminderID] = rem
	return nil
}

func (r *fakeRepo) ListTasks(_ context.Context, caseID uuid.UUID) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Task, len(r.tasks[caseID]))
	copy(out, r.tasks[caseID])
	return out, nil
}

func (r *fakeRepo) TransitionTask(_ context.Context, caseID uuid.UUID, key string, expected, next domain.TaskStatus, dueAt *time.Time) (bool, error) {
	if r.transitionHook != nil {
		if handled, ok, err := r.transitionHook(caseID, key); handled {
			return ok, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks[caseID] {
		if t.Key != key {
			continue
		}
		if t.Status != expected {
			return false, nil
		}
		r.tasks[caseID][i].Status = next
		if dueAt != nil {
			due := *dueAt
			r.tasks[caseID][i].DueAt = &due
		}
		return true, nil
	}
	return false, nil
}

func (r *fakeRepo) UpdateTaskMetadata(_ context.Context, caseID uuid.UUID, key string, metadata domain.TaskMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks[caseID] {
		if t.Key == key {
			r.tasks[caseID][i].Metadata = metadata
			return nil
		}
	}
	return apperr.NotFound("task not found")
}

func (r *fakeRepo) ListEscalations(_ context.Context, caseID uuid.UUID) ([]domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.listEscalationsErr[caseID]; err != nil {
		return nil, err
	}
	var out []domain.Escalation
	for _, e := range r.escalations {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateEscalation(_ context.Context, e domain.Escalation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.escalations {
		if existing.DeadlineID == e.DeadlineID && existing.Level == e.Level {
			return false, nil
		}
	}
	r.escalations = append(r.escalations, e)
	return true, nil
}

func (r *fakeRepo) AcknowledgeEscalation(_ context.Context, caseID, escalationID uuid.UUID, at time.Time) (domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.escalations {
		if e.ID == escalationID && e.CaseID == caseID {
			if !e.Acknowledged {
				r.escalations[i].Acknowledged = true
				r.escalations[i].AcknowledgedAt = &at
			}
			return r.escalations[i], nil
		}
	}
	return domain.Escalation{}, apperr.NotFound("escalation not found")
}

func (r *fakeRepo) AppendEvent(_ context.Context, e domain.CaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendEventErr != nil {
		return r.appendEventErr
	}
	r.events = append(r.events, e)
	return nil
}

func (r *fakeRepo) ListEventsOfKinds(_ context.Context, caseID uuid.UUID, kinds []string) ([]domain.CaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseEvent
	for _, e := range r.events {
		if e.CaseID != caseID {
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListEventsSince(_ context.Context, caseID uuid.UUID, since time.Time) ([]domain.CaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseEvent
	for _, e := range r.events {
		if e.CaseID == caseID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListRecentEvents(_ context.Context, caseID uuid.UUID, limit int) ([]domain.CaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CaseEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].CaseID == caseID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) eventKinds(caseID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.CaseID == caseID {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (r *fakeRepo) task(caseID uuid.UUID, key string) domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks[caseID] {
		if t.Key == key {
			return t
		}
	}
	return domain.Task{}
}

func (r *fakeRepo) setTaskStatus(caseID uuid.UUID, key string, status domain.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks[caseID] {
		if t.Key == key {
			r.tasks[caseID][i].Status = status
		}
	}
}

// mutexLocker is a single global lock; failFor makes Lock fail for one case.
type mutexLocker struct {
	mu      sync.Mutex
	failFor uuid.UUID
}

func (l *mutexLocker) Lock(_ context.Context, caseID uuid.UUID) (func(), error) {
	if caseID == l.failFor {
		return nil, errors.New("lock timeout")
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []domain.Reminder
	err       error
}

func (s *recordingScheduler) ScheduleReminder(_ context.Context, r domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, r)
	return nil
}

// recordingBus delivers synchronously and keeps every event.
type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
	handlers  map[string][]events.Handler
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	_ = b.PublishSync(ctx, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := append([]events.Handler(nil), b.handlers[event.EventName()]...)
	b.mu.Unlock()

	var firstErr error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string][]events.Handler)
	}
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *recordingBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type engineConfig struct {
	loc *time.Location
}

func (c engineConfig) GetDefaultLocation() *time.Location { return c.loc }
func (engineConfig) GetEscalationRulesPath() string       { return "" }
func (engineConfig) GetBatchConcurrency() int             { return 2 }
func (engineConfig) GetEventLookback() time.Duration      { return 30 * 24 * time.Hour }
func (engineConfig) GetReminderChannel() string           { return "email" }
