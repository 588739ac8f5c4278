package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReminderDue = "casetimeline.reminder.due"

const TaskEscalationSweep = "casetimeline.escalation.sweep"

const TaskGatekeeperSweep = "casetimeline.gatekeeper.sweep"

type ReminderDuePayload struct {
	ReminderID string `json:"reminderId"`
	DeadlineID string `json:"deadlineId"`
}

type SweepPayload struct {
	Job string `json:"job"`
}

func NewReminderDueTask(payload ReminderDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDue, data), nil
}

func ParseReminderDuePayload(task *asynq.Task) (ReminderDuePayload, error) {
	var payload ReminderDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderDuePayload{}, err
	}
	return payload, nil
}

func NewSweepTask(taskType, job string) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{Job: job})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
