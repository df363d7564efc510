package model

import "time"

const (
	RecordTypeDefault = iota
	RecordTypeDispatch
	RecordTypeStage
	RecordTypeClassify
	RecordTypeGate
	RecordTypeNotify
)

// Record is the attempt-scoped append-only log: one row per orchestration
// transition, replayed by the console and kept for audit. The operational
// zap log is the other sink; the two are never conflated.
type Record struct {
	ID           int64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id"`
	Type         int   `gorm:"column:type" json:"type"`
	DeploymentId int64 `gorm:"column:deployment_id;index;not null" json:"deployment_id"`
	UserId       int64 `gorm:"column:user_id" json:"user_id"`

	Stage   string `gorm:"column:stage;size:100;not null;default:''" json:"stage"`
	Status  int    `gorm:"column:status" json:"status"`
	Content string `gorm:"column:content;type:text" json:"content"`
	RunTime int64  `gorm:"column:run_time;comment:milliseconds" json:"run_time"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}
