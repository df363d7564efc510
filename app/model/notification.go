package model

import (
	"go-shipper/app/model/field"
	"time"
)

// Notification is the in-app fan-out record for one recipient of one
// terminal deployment event. Transport channels live outside the core.
type Notification struct {
	ID           int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	UserId       int64 `gorm:"column:user_id;index;not null" json:"user_id"`
	DeploymentId int64 `gorm:"column:deployment_id;index;not null" json:"deployment_id"`

	Type    string            `gorm:"column:type;size:20;not null;comment:success or failure" json:"type"`
	Message string            `gorm:"column:message;size:500;not null;default:''" json:"message"`
	Meta    field.Map[string] `gorm:"column:meta;comment:attempt context for the inbox" json:"meta"`

	ReadAt *time.Time `gorm:"column:read_at" json:"read_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
