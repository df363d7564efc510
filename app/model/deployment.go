package model

import (
	"time"
)

type DeploymentKind string

const (
	KindDeploy   DeploymentKind = "deploy"
	KindRollback DeploymentKind = "rollback"
)

type DeploymentStatus string

const (
	DeploymentStatusPending     DeploymentStatus = "pending"
	DeploymentStatusProcessing  DeploymentStatus = "processing"
	DeploymentStatusSuccess     DeploymentStatus = "success"
	DeploymentStatusWarnings    DeploymentStatus = "success_with_warnings"
	DeploymentStatusFailed      DeploymentStatus = "failed"
	DeploymentStatusCancelled   DeploymentStatus = "cancelled"
)

func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentStatusSuccess, DeploymentStatusWarnings, DeploymentStatusFailed, DeploymentStatusCancelled:
		return true
	}
	return false
}

func (s DeploymentStatus) Shipped() bool {
	return s == DeploymentStatusSuccess || s == DeploymentStatusWarnings
}

// Deployment is one deploy or rollback attempt, from creation to terminal
// status. Rows are append-only: superseded by newer attempts, never deleted.
type Deployment struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	Reference     string `gorm:"column:reference;size:40;uniqueIndex;not null;comment:external uuid" json:"reference"`
	ProjectId     int64  `gorm:"column:project_id;index;not null" json:"project_id"`
	EnvironmentId int64  `gorm:"column:environment_id;index;not null" json:"environment_id"`
	UserId        *int64 `gorm:"column:user_id;comment:triggering user, null for scheduled" json:"user_id"`

	Kind           DeploymentKind   `gorm:"column:kind;size:20;not null;default:'deploy'" json:"kind"`
	Status         DeploymentStatus `gorm:"column:status;size:30;not null;default:'pending'" json:"status"`
	Branch         string           `gorm:"column:branch;size:100;not null;default:''" json:"branch"`
	CommitHash     string           `gorm:"column:commit_hash;size:100;not null;default:''" json:"commit_hash"`
	ExpectedCommit string           `gorm:"column:expected_commit;size:100;not null;default:'';comment:branch head resolved before dispatch" json:"expected_commit"`
	RunId          string           `gorm:"column:run_id;size:100;not null;default:''" json:"run_id"`
	Output         string           `gorm:"column:output;type:text" json:"output"`
	LastError      string           `gorm:"column:last_error;type:text" json:"last_error"`

	RollbackTargetId *int64 `gorm:"column:rollback_target_id" json:"rollback_target_id"`
	RollbackReason   string `gorm:"column:rollback_reason;size:500;not null;default:''" json:"rollback_reason"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`

	Project        Project                 `json:"project"`
	Environment    Environment             `json:"environment"`
	User           *User                   `json:"user"`
	RollbackTarget *Deployment             `gorm:"foreignKey:RollbackTargetId" json:"rollback_target"`
	Stages         []*PipelineStage        `json:"stages"`
	Findings       []*VulnerabilityFinding `json:"findings"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
