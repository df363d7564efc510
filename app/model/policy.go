package model

import (
	"go-shipper/app/model/field"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// GatedSeverities orders the severities the gate thresholds apply to,
// most severe first. Info findings are recorded but never gate.
var GatedSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// SecurityPolicy gates a technically successful deployment on vulnerability
// counts. ProjectId null means the global default; resolution is project
// policy, else global, else no policy at all (which always permits).
type SecurityPolicy struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	ProjectId *int64 `gorm:"column:project_id;index;comment:null for the global default" json:"project_id"`

	Status         field.Status         `gorm:"column:status;size:1;not null;default:0" json:"status"`
	MaxCritical    int                  `gorm:"column:max_critical;not null;default:0" json:"max_critical"`
	MaxHigh        int                  `gorm:"column:max_high;not null;default:0" json:"max_high"`
	MaxMedium      int                  `gorm:"column:max_medium;not null;default:0" json:"max_medium"`
	MaxLow         int                  `gorm:"column:max_low;not null;default:0" json:"max_low"`
	ScanTypes      field.Slices[string] `gorm:"column:scan_types" json:"scan_types"`
	BlockOnSecrets bool                 `gorm:"column:block_on_secrets;not null;default:false" json:"block_on_secrets"`
	ScanTimeout    int                  `gorm:"column:scan_timeout;not null;default:300;comment:seconds" json:"scan_timeout"`
	ScanRetries    int                  `gorm:"column:scan_retries;not null;default:1" json:"scan_retries"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (p *SecurityPolicy) MaxFor(s Severity) int {
	switch s {
	case SeverityCritical:
		return p.MaxCritical
	case SeverityHigh:
		return p.MaxHigh
	case SeverityMedium:
		return p.MaxMedium
	case SeverityLow:
		return p.MaxLow
	}
	return 0
}
