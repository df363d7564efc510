package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/model"
	"go-shipper/app/service/deploy"
)

// Config tunes the trigger worker.
type Config struct {
	PollInterval time.Duration `help:"how often the worker polls for due schedules" default:"30s" devDefault:"2s"`
	Workers      int           `help:"concurrent schedule executions" default:"2"`
	MaxAttempts  int           `help:"worker-level attempts before a schedule is marked failed" default:"3"`
}

// Deployer is the slice of the orchestrator the worker needs.
type Deployer interface {
	Deploy(ctx context.Context, params *deploy.DeployParams) (*model.Deployment, error)
}

// Worker drains due ScheduledDeployment rows and hands each one to the
// orchestrator. Scheduled attempts carry no actor; the worker runs with a
// fixed deploy capability.
type Worker struct {
	conf     *Config
	db       *gorm.DB
	log      *zap.Logger
	deployer Deployer
}

func NewWorker(conf *Config, db *gorm.DB, log *zap.Logger, deployer Deployer) *Worker {
	return &Worker{conf: conf, db: db, log: log.Named("schedule-worker"), deployer: deployer}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.conf.PollInterval)
	defer ticker.Stop()
	w.log.Info("trigger worker started", zap.Duration("poll_interval", w.conf.PollInterval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("trigger worker stopping")
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.log.Error("poll failed", zap.Error(err))
			}
		}
	}
}

// tick claims every due schedule and executes the batch with a bounded
// worker pool. Claiming flips pending rows to queued first so a crashed
// poll never double-triggers on restart (queued rows are re-claimed too).
func (w *Worker) tick(ctx context.Context) error {
	now := time.Now()
	err := w.db.Model(&model.ScheduledDeployment{}).
		Where("status = ? AND scheduled_at <= ?", model.ScheduleStatusPending, now).
		Update("status", model.ScheduleStatusQueued).Error
	if err != nil {
		return ErrSchedule.Wrap(err)
	}
	var due []*model.ScheduledDeployment
	err = w.db.Where("status = ?", model.ScheduleStatusQueued).
		Order("scheduled_at ASC").Find(&due).Error
	if err != nil {
		return ErrSchedule.Wrap(err)
	}
	if len(due) == 0 {
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.conf.Workers)
	for _, row := range due {
		row := row
		group.Go(func() error {
			w.execute(groupCtx, row)
			return nil
		})
	}
	return group.Wait()
}

// execute runs one claimed schedule. It re-reads the row first: a cancel
// racing the poll wins, a queued row whose user cancelled is dropped.
func (w *Worker) execute(ctx context.Context, row *model.ScheduledDeployment) {
	var current model.ScheduledDeployment
	if err := w.db.First(&current, row.ID).Error; err != nil {
		w.log.Error("re-reading schedule", zap.Error(err), zap.Int64("schedule_id", row.ID))
		return
	}
	if current.Status != model.ScheduleStatusQueued {
		w.log.Info("schedule no longer queued, skipping",
			zap.Int64("schedule_id", row.ID), zap.String("status", string(current.Status)))
		return
	}
	current.Attempts++
	if err := w.db.Model(&current).Updates(map[string]any{
		"status":   model.ScheduleStatusRunning,
		"attempts": current.Attempts,
	}).Error; err != nil {
		w.log.Error("marking schedule running", zap.Error(err), zap.Int64("schedule_id", row.ID))
		return
	}

	params := &deploy.DeployParams{
		ProjectId:     current.ProjectId,
		EnvironmentId: current.EnvironmentId,
		Capability:    constants.CapabilityFor(constants.RoleDeveloper),
	}
	deployment, err := w.deployer.Deploy(ctx, params)
	if err != nil {
		// the orchestrator refused before creating an attempt; worth
		// retrying on a later poll until the attempts run out
		w.retryOrFail(&current, err.Error())
		return
	}
	w.db.Model(&current).Update("deployment_id", deployment.ID)
	if !deployment.Status.Shipped() {
		w.finish(&current, model.ScheduleStatusFailed,
			fmt.Sprintf("deployment %d finished with status %s", deployment.ID, deployment.Status))
		return
	}
	w.finish(&current, model.ScheduleStatusCompleted, "")
	w.reschedule(&current)
}

func (w *Worker) retryOrFail(row *model.ScheduledDeployment, lastError string) {
	if row.Attempts >= w.conf.MaxAttempts {
		w.finish(row, model.ScheduleStatusFailed, lastError)
		return
	}
	if err := w.db.Model(row).Updates(map[string]any{
		"status":     model.ScheduleStatusPending,
		"last_error": lastError,
	}).Error; err != nil {
		w.log.Error("requeueing schedule", zap.Error(err), zap.Int64("schedule_id", row.ID))
		return
	}
	w.log.Warn("schedule trigger failed, will retry",
		zap.Int64("schedule_id", row.ID),
		zap.Int("attempts", row.Attempts),
		zap.String("error", lastError))
}

func (w *Worker) finish(row *model.ScheduledDeployment, status model.ScheduleStatus, lastError string) {
	if err := w.db.Model(row).Updates(map[string]any{
		"status":     status,
		"last_error": lastError,
	}).Error; err != nil {
		w.log.Error("finishing schedule", zap.Error(err), zap.Int64("schedule_id", row.ID))
		return
	}
	w.log.Info("schedule finished",
		zap.Int64("schedule_id", row.ID),
		zap.String("status", string(status)))
}

// reschedule creates the next occurrence of a recurring schedule. The next
// time is computed from the original scheduled time, not from when the
// worker got around to it, so a delayed poll does not drift the cadence.
func (w *Worker) reschedule(row *model.ScheduledDeployment) {
	next, ok := row.Recurrence.Next(row.ScheduledAt)
	if !ok {
		return
	}
	for !next.After(time.Now()) {
		next, _ = row.Recurrence.Next(next)
	}
	successor := &model.ScheduledDeployment{
		ProjectId:     row.ProjectId,
		EnvironmentId: row.EnvironmentId,
		UserId:        row.UserId,
		ScheduledAt:   next,
		Recurrence:    row.Recurrence,
		Status:        model.ScheduleStatusPending,
	}
	if err := w.db.Create(successor).Error; err != nil {
		w.log.Error("creating recurring successor", zap.Error(err), zap.Int64("schedule_id", row.ID))
		return
	}
	w.log.Info("recurring schedule advanced",
		zap.Int64("schedule_id", row.ID),
		zap.Int64("next_schedule_id", successor.ID),
		zap.Time("next_at", next))
}
