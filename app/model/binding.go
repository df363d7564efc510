package model

import (
	"go-shipper/app/model/field"
	"time"
)

// EnvironmentBinding is the resolved project x environment configuration:
// concrete endpoint urls and on-disk paths, materialized once when the
// project is created. At most one active binding per pair.
type EnvironmentBinding struct {
	ID            int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	ProjectId     int64 `gorm:"column:project_id;index:idx_binding_pair;not null" json:"project_id"`
	EnvironmentId int64 `gorm:"column:environment_id;index:idx_binding_pair;not null" json:"environment_id"`

	DeployUrl   string       `gorm:"column:deploy_url;size:500;not null;default:''" json:"deploy_url"`
	RollbackUrl string       `gorm:"column:rollback_url;size:500;not null;default:''" json:"rollback_url"`
	AppUrl      string       `gorm:"column:app_url;size:500;not null;default:''" json:"app_url"`
	ProjectPath string       `gorm:"column:project_path;size:500;not null;default:''" json:"project_path"`
	Branch      string       `gorm:"column:branch;size:100;not null;default:''" json:"branch"`
	Status      field.Status `gorm:"column:status;size:1;not null;default:0" json:"status"`

	Project     Project     `json:"project"`
	Environment Environment `json:"environment"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
