package model

import "time"

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Next computes the following occurrence by fixed-interval addition from
// the original scheduled time.
func (r Recurrence) Next(from time.Time) (time.Time, bool) {
	switch r {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1), true
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7), true
	case RecurrenceMonthly:
		return from.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}

type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusQueued    ScheduleStatus = "queued"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// ScheduledDeployment is the durable queue row consumed by the trigger
// worker. Attempts counts worker-level retries, which re-run the whole
// orchestration call.
type ScheduledDeployment struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	ProjectId     int64  `gorm:"column:project_id;index;not null" json:"project_id"`
	EnvironmentId int64  `gorm:"column:environment_id;not null" json:"environment_id"`
	UserId        *int64 `gorm:"column:user_id" json:"user_id"`

	ScheduledAt  time.Time      `gorm:"column:scheduled_at;index;not null" json:"scheduled_at"`
	Recurrence   Recurrence     `gorm:"column:recurrence;size:20;not null;default:'none'" json:"recurrence"`
	Status       ScheduleStatus `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError    string         `gorm:"column:last_error;type:text" json:"last_error"`
	DeploymentId *int64         `gorm:"column:deployment_id;comment:last attempt triggered by this schedule" json:"deployment_id"`

	Project     Project     `json:"project"`
	Environment Environment `json:"environment"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
