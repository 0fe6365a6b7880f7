// Package jobs defines the background task surface: queue names, task
// payloads and the Asynq worker that processes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeResetCorrupted is the nightly maintenance sweep forcing claims
	// with unrecognised stage values back to pending.
	TaskTypeResetCorrupted = "claims:reset_corrupted"
	// TaskTypeTeamReport builds a team's weekly payout report and mails it.
	TaskTypeTeamReport = "payout:team_report"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewResetCorruptedTask constructs the maintenance sweep task. It carries no
// payload; the handler scans the whole claims table.
func NewResetCorruptedTask() *asynq.Task {
	return asynq.NewTask(TaskTypeResetCorrupted, nil)
}

// TeamReportPayload selects the team-week to report on and the recipient.
type TeamReportPayload struct {
	TeamID int64  `json:"team_id"`
	Date   string `json:"date"` // any date inside the ISO week, YYYY-MM-DD
	To     string `json:"to"`
}

// NewTeamReportTask constructs a payout report task.
func NewTeamReportTask(payload TeamReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTeamReport, data), nil
}
