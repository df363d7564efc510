package model

import (
	"go-shipper/app/model/field"
	"gorm.io/gorm"
	"time"
)

type Project struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	Name        string       `gorm:"column:name;size:100;not null" json:"name"`
	RepoUrl     string       `gorm:"column:repo_url;size:500;not null;default:''" json:"repo_url"`
	Branch      string       `gorm:"column:branch;size:100;not null;default:'master'" json:"branch"`
	AccessToken string       `gorm:"column:access_token;size:200;not null;default:'';comment:bearer token for the deploy endpoint" json:"-"`
	Status      field.Status `gorm:"column:status;size:1;not null;default:0" json:"status"`
	Description string       `gorm:"column:description;size:500;not null;default:''" json:"description"`

	Bindings []*EnvironmentBinding `json:"bindings"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}
