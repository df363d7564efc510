package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/model"
)

var (
	ErrPipeline          = errs.Class("pipeline")
	ErrInvalidTransition = errs.Class("invalid transition")
)

// StageDef describes one stage to instantiate for a new attempt.
type StageDef struct {
	Name  string
	Label string
}

// DeployStages is the fixed simulated sequence driven for every deploy.
// The remote script is a monolithic black box; the tracker still walks
// these so operators get stage-level visibility.
var DeployStages = []StageDef{
	{Name: "prepare", Label: "Prepare attempt"},
	{Name: "dispatch", Label: "Invoke remote deploy script"},
	{Name: "classify", Label: "Classify remote response"},
	{Name: "security_scan", Label: "Security policy gate"},
	{Name: "finalize", Label: "Finalize"},
}

var RollbackStages = []StageDef{
	{Name: "prepare", Label: "Validate rollback target"},
	{Name: "dispatch", Label: "Invoke remote rollback script"},
	{Name: "classify", Label: "Classify remote response"},
	{Name: "finalize", Label: "Finalize"},
}

type Tracker struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTracker(db *gorm.DB, log *zap.Logger) *Tracker {
	return &Tracker{db: db, log: log}
}

// CreateStages instantiates the pipeline for one attempt, all pending,
// ordered as given. Duplicate names within the attempt are rejected.
func (t *Tracker) CreateStages(deploymentId int64, defs []StageDef) ([]*model.PipelineStage, error) {
	if len(defs) == 0 {
		return nil, ErrPipeline.New("empty stage list")
	}
	seen := make(map[string]struct{}, len(defs))
	stages := make([]*model.PipelineStage, 0, len(defs))
	for i, def := range defs {
		if _, ok := seen[def.Name]; ok {
			return nil, ErrPipeline.New("duplicate stage name %q", def.Name)
		}
		seen[def.Name] = struct{}{}
		stages = append(stages, &model.PipelineStage{
			DeploymentId: deploymentId,
			Name:         def.Name,
			Label:        def.Label,
			Order:        i + 1,
			Status:       model.StageStatusPending,
		})
	}
	if err := t.db.Create(&stages).Error; err != nil {
		return nil, ErrPipeline.Wrap(err)
	}
	return stages, nil
}

// Start moves a pending stage to running. Only one stage of an attempt may
// run at a time.
func (t *Tracker) Start(stage *model.PipelineStage) error {
	if stage.Status != model.StageStatusPending {
		return ErrInvalidTransition.New("start from %s", stage.Status)
	}
	var running int64
	err := t.db.Model(&model.PipelineStage{}).
		Where("deployment_id = ? and status = ?", stage.DeploymentId, model.StageStatusRunning).
		Count(&running).Error
	if err != nil {
		return ErrPipeline.Wrap(err)
	}
	if running > 0 {
		return ErrInvalidTransition.New("another stage of deployment %d is already running", stage.DeploymentId)
	}
	now := time.Now()
	stage.Status = model.StageStatusRunning
	stage.StartedAt = &now
	return ErrPipeline.Wrap(t.db.Model(stage).
		Select("status", "started_at").Updates(stage).Error)
}

// Complete finishes a running stage. A failure cascades: every later stage
// still pending is skipped with a reason naming the failed stage.
func (t *Tracker) Complete(stage *model.PipelineStage, success bool, output, errorMessage string) error {
	if stage.Status != model.StageStatusRunning {
		return ErrInvalidTransition.New("complete from %s", stage.Status)
	}
	now := time.Now()
	stage.CompletedAt = &now
	stage.Output = output
	stage.ErrorMessage = errorMessage
	stage.Status = model.StageStatusSuccess
	if !success {
		stage.Status = model.StageStatusFailed
	}
	err := t.db.Model(stage).
		Select("status", "completed_at", "output", "error_message").Updates(stage).Error
	if err != nil {
		return ErrPipeline.Wrap(err)
	}
	if stage.StartedAt != nil {
		t.log.Debug("stage completed",
			zap.Int64("deployment_id", stage.DeploymentId),
			zap.String("stage", stage.Name),
			zap.String("status", string(stage.Status)),
			zap.Duration("duration", now.Sub(*stage.StartedAt)))
	}
	if !success {
		return t.SkipRemaining(stage.DeploymentId, stage.Order, stage.Name)
	}
	return nil
}

// SkipRemaining skips every pending stage ordered after the failed one.
// Idempotent: already skipped or terminal stages are untouched.
func (t *Tracker) SkipRemaining(deploymentId int64, afterOrder int, failedName string) error {
	now := time.Now()
	return ErrPipeline.Wrap(t.db.Model(&model.PipelineStage{}).
		Where("deployment_id = ? and sort_order > ? and status = ?",
			deploymentId, afterOrder, model.StageStatusPending).
		Updates(map[string]any{
			"status":        model.StageStatusSkipped,
			"completed_at":  now,
			"error_message": fmt.Sprintf("skipped: stage %q failed", failedName),
		}).Error)
}

// Next returns the lowest-order stage still pending, or nil when the
// pipeline is complete.
func (t *Tracker) Next(deploymentId int64) (*model.PipelineStage, error) {
	var stage model.PipelineStage
	err := t.db.Where("deployment_id = ? and status = ?", deploymentId, model.StageStatusPending).
		Order("sort_order asc").First(&stage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ErrPipeline.Wrap(err)
	}
	return &stage, nil
}

// CompleteSweep advances every remaining pending stage straight to success,
// best-effort. Used after a classified remote success, where the black-box
// script has already done all the work the stages describe.
func (t *Tracker) CompleteSweep(deploymentId int64, output string) error {
	for {
		stage, err := t.Next(deploymentId)
		if err != nil {
			return err
		}
		if stage == nil {
			return nil
		}
		if err = t.Start(stage); err != nil {
			return err
		}
		if err = t.Complete(stage, true, output, ""); err != nil {
			return err
		}
		// only the first swept stage carries the remote output
		output = ""
	}
}

// CancelPending cancels every pending or running stage, used when the
// owning attempt is cancelled before or during processing.
func (t *Tracker) CancelPending(deploymentId int64) error {
	now := time.Now()
	return ErrPipeline.Wrap(t.db.Model(&model.PipelineStage{}).
		Where("deployment_id = ? and status in ?",
			deploymentId, []model.StageStatus{model.StageStatusPending, model.StageStatusRunning}).
		Updates(map[string]any{
			"status":       model.StageStatusCancelled,
			"completed_at": now,
		}).Error)
}

// Stages returns the attempt's pipeline in order.
func (t *Tracker) Stages(deploymentId int64) ([]*model.PipelineStage, error) {
	var stages []*model.PipelineStage
	err := t.db.Where("deployment_id = ?", deploymentId).
		Order("sort_order asc").Find(&stages).Error
	return stages, ErrPipeline.Wrap(err)
}

// FindByName loads one stage of an attempt.
func (t *Tracker) FindByName(deploymentId int64, name string) (*model.PipelineStage, error) {
	var stage model.PipelineStage
	err := t.db.Where("deployment_id = ? and name = ?", deploymentId, name).First(&stage).Error
	if err != nil {
		return nil, ErrPipeline.Wrap(err)
	}
	return &stage, nil
}
