package model

import "time"

type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSuccess   StageStatus = "success"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusCancelled StageStatus = "cancelled"
)

func (s StageStatus) Terminal() bool {
	switch s {
	case StageStatusSuccess, StageStatusFailed, StageStatusSkipped, StageStatusCancelled:
		return true
	}
	return false
}

// PipelineStage is one named step of an attempt's pipeline. Stages of one
// deployment have unique names and a total order; at most one is running
// at a time.
type PipelineStage struct {
	ID           int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	DeploymentId int64 `gorm:"column:deployment_id;uniqueIndex:idx_deployment_stage;not null" json:"deployment_id"`

	Name         string      `gorm:"column:name;size:100;uniqueIndex:idx_deployment_stage;not null" json:"name"`
	Label        string      `gorm:"column:label;size:200;not null;default:''" json:"label"`
	Order        int         `gorm:"column:sort_order;not null" json:"order"`
	Status       StageStatus `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	Output       string      `gorm:"column:output;type:text" json:"output"`
	ErrorMessage string      `gorm:"column:error_message;type:text" json:"error_message"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
