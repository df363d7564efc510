package model

import "time"

type FindingStatus string

const (
	FindingStatusOpen          FindingStatus = "open"
	FindingStatusAcknowledged  FindingStatus = "acknowledged"
	FindingStatusFalsePositive FindingStatus = "false_positive"
	FindingStatusFixed         FindingStatus = "fixed"
	FindingStatusIgnored       FindingStatus = "ignored"
)

// VulnerabilityFinding is one scanner result tied to a deployment attempt.
// Triage (acknowledge, mark false positive) happens outside the core.
type VulnerabilityFinding struct {
	ID           int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	DeploymentId int64 `gorm:"column:deployment_id;index;not null" json:"deployment_id"`

	ScanType    string        `gorm:"column:scan_type;size:50;not null;default:''" json:"scan_type"`
	Severity    Severity      `gorm:"column:severity;size:20;not null" json:"severity"`
	Status      FindingStatus `gorm:"column:status;size:20;not null;default:'open'" json:"status"`
	Title       string        `gorm:"column:title;size:200;not null;default:''" json:"title"`
	Description string        `gorm:"column:description;type:text" json:"description"`
	Location    string        `gorm:"column:location;size:500;not null;default:''" json:"location"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
