package model

import (
	"go-shipper/app/model/field"
	"gorm.io/gorm"
	"time"
)

// Environment is a deployment target: where artifacts are placed and which
// endpoint triggers the remote deploy script. Read-only from the
// orchestrator's perspective.
type Environment struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	Name        string       `gorm:"column:name;size:100;not null;comment:display name" json:"name"`
	Slug        string       `gorm:"column:slug;size:100;uniqueIndex;not null" json:"slug"`
	BasePath    string       `gorm:"column:base_path;size:500;not null;default:'';comment:local filesystem root" json:"base_path"`
	NetworkPath string       `gorm:"column:network_path;size:500;not null;default:'';comment:unc-style network root" json:"network_path"`
	WebUrl      string       `gorm:"column:web_url;size:500;not null;default:''" json:"web_url"`
	DeployUrl   string       `gorm:"column:deploy_url;size:500;not null;default:'';comment:deploy endpoint base url" json:"deploy_url"`
	Status      field.Status `gorm:"column:status;size:1;not null;default:0" json:"status"`
	SortOrder   int          `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	Description string       `gorm:"column:description;size:500;not null;default:''" json:"description"`

	Bindings []*EnvironmentBinding `json:"bindings"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}
