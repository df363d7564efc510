package schedule

import (
	"errors"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
)

var ErrSchedule = errs.Class("schedule")

// Service manages the durable queue of future deployments the worker
// drains. Rows are plain database records so schedules survive restarts.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log.Named("schedule")}
}

type CreateParams struct {
	ProjectId     int64
	EnvironmentId int64
	ScheduledAt   time.Time
	Recurrence    model.Recurrence
	Actor         *model.User
}

func (srv *Service) Create(params *CreateParams) (*model.ScheduledDeployment, error) {
	if !params.ScheduledAt.After(time.Now()) {
		return nil, errcode.ErrInvalidParams.New("scheduled time must be in the future")
	}
	switch params.Recurrence {
	case "", model.RecurrenceNone, model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly:
	default:
		return nil, errcode.ErrInvalidParams.New("unknown recurrence %q", params.Recurrence)
	}
	row := &model.ScheduledDeployment{
		ProjectId:     params.ProjectId,
		EnvironmentId: params.EnvironmentId,
		ScheduledAt:   params.ScheduledAt,
		Recurrence:    params.Recurrence,
		Status:        model.ScheduleStatusPending,
	}
	if row.Recurrence == "" {
		row.Recurrence = model.RecurrenceNone
	}
	if params.Actor != nil {
		row.UserId = &params.Actor.ID
	}
	if err := srv.db.Create(row).Error; err != nil {
		return nil, ErrSchedule.Wrap(err)
	}
	srv.log.Info("schedule created",
		zap.Int64("schedule_id", row.ID),
		zap.Int64("project_id", row.ProjectId),
		zap.Time("scheduled_at", row.ScheduledAt),
		zap.String("recurrence", string(row.Recurrence)))
	return row, nil
}

// Cancel withdraws a schedule that has not started executing. Queued
// rows are still cancellable, the worker re-reads before running and a
// cancellation seen there wins.
func (srv *Service) Cancel(scheduleId int64) error {
	result := srv.db.Model(&model.ScheduledDeployment{}).
		Where("id = ? AND status IN ?", scheduleId,
			[]model.ScheduleStatus{model.ScheduleStatusPending, model.ScheduleStatusQueued}).
		Update("status", model.ScheduleStatusCancelled)
	if result.Error != nil {
		return ErrSchedule.Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return errcode.ErrPrecondition.New("schedule %d has already started or finished", scheduleId)
	}
	return nil
}

func (srv *Service) Detail(scheduleId int64) (*model.ScheduledDeployment, error) {
	var row model.ScheduledDeployment
	err := srv.db.Preload("Project").Preload("Environment").First(&row, scheduleId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrPrecondition.New("schedule %d not found", scheduleId)
	}
	if err != nil {
		return nil, ErrSchedule.Wrap(err)
	}
	return &row, nil
}

// List returns a page of schedules for a project, soonest first.
func (srv *Service) List(projectId int64, page, pageSize int) ([]*model.ScheduledDeployment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query := srv.db.Model(&model.ScheduledDeployment{}).Where("project_id = ?", projectId)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, ErrSchedule.Wrap(err)
	}
	var rows []*model.ScheduledDeployment
	err := query.Preload("Environment").
		Order("scheduled_at ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, ErrSchedule.Wrap(err)
	}
	return rows, total, nil
}
