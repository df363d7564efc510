package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
	"go-shipper/app/pkg/repo"
	"go-shipper/app/service/classify"
	"go-shipper/app/service/pipeline"
	"go-shipper/app/service/secscan"
)

var ErrDeploy = errs.Class("deploy")

// DeployParams is one deploy order. Actor is nil for scheduled attempts,
// the scheduler carries its own capability.
type DeployParams struct {
	ProjectId     int64
	EnvironmentId int64
	Branch        string
	Actor         *model.User
	Capability    constants.Capability
}

// Service is the orchestrator: it owns the full lifecycle of an attempt
// from creation to terminal status. Once the attempt row exists, outcomes
// are expressed as attempt state, not as returned errors.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	tracker  *pipeline.Tracker
	gate     *secscan.Gate
	client   *Client
	notifier Notifier
	resolver *repo.Resolver
	reg      *registry
}

func NewService(db *gorm.DB, log *zap.Logger, tracker *pipeline.Tracker, gate *secscan.Gate, client *Client, notifier Notifier, resolver *repo.Resolver) *Service {
	return &Service{
		db:       db,
		log:      log.Named("deploy"),
		tracker:  tracker,
		gate:     gate,
		client:   client,
		notifier: notifier,
		resolver: resolver,
		reg:      newRegistry(),
	}
}

// Deploy runs one deploy attempt end to end. Configuration and
// precondition problems surface as errors before any attempt row exists;
// everything after creation lands in the attempt's status instead.
func (srv *Service) Deploy(ctx context.Context, params *DeployParams) (*model.Deployment, error) {
	deployment, project, binding, err := srv.begin(params)
	if err != nil {
		return nil, err
	}
	defer srv.reg.release(params.ProjectId, params.EnvironmentId)
	if deployment.Status.Terminal() {
		return deployment, nil
	}
	srv.runDeploy(ctx, deployment, project, binding)
	return deployment, nil
}

// DeployAsync validates and creates the attempt, then drives it in the
// background. The caller gets the pending attempt immediately and follows
// progress through the console.
func (srv *Service) DeployAsync(params *DeployParams) (*model.Deployment, error) {
	deployment, project, binding, err := srv.begin(params)
	if err != nil {
		return nil, err
	}
	if deployment.Status.Terminal() {
		srv.reg.release(params.ProjectId, params.EnvironmentId)
		return deployment, nil
	}
	go func() {
		defer srv.reg.release(params.ProjectId, params.EnvironmentId)
		srv.runDeploy(context.Background(), deployment, project, binding)
	}()
	return deployment, nil
}

// begin performs every check that must reject before an attempt row
// exists, then creates the row and its pipeline. On success the advisory
// lock is held; releasing it is the caller's job.
func (srv *Service) begin(params *DeployParams) (*model.Deployment, *model.Project, *model.EnvironmentBinding, error) {
	if !params.Capability.CanDeploy {
		return nil, nil, nil, errcode.ErrForbidden
	}
	project, binding, err := srv.resolveBinding(params.ProjectId, params.EnvironmentId)
	if err != nil {
		return nil, nil, nil, err
	}
	if err = srv.reg.acquire(params.ProjectId, params.EnvironmentId); err != nil {
		return nil, nil, nil, err
	}

	branch := params.Branch
	if branch == "" {
		branch = binding.Branch
	}
	if branch == "" {
		branch = project.Branch
	}
	deployment := &model.Deployment{
		Reference:     uuid.NewString(),
		ProjectId:     params.ProjectId,
		EnvironmentId: params.EnvironmentId,
		Kind:          model.KindDeploy,
		Status:        model.DeploymentStatusPending,
		Branch:        branch,
	}
	if params.Actor != nil {
		deployment.UserId = &params.Actor.ID
	}
	if err = srv.db.Create(deployment).Error; err != nil {
		srv.reg.release(params.ProjectId, params.EnvironmentId)
		return nil, nil, nil, ErrDeploy.Wrap(err)
	}
	if _, err = srv.tracker.CreateStages(deployment.ID, pipeline.DeployStages); err != nil {
		srv.forceFail(deployment, fmt.Sprintf("creating pipeline: %v", err))
	}
	return deployment, project, binding, nil
}

// runDeploy drives the pipeline. A panic anywhere inside is absorbed into
// a failed attempt; the caller boundary never sees it.
func (srv *Service) runDeploy(ctx context.Context, deployment *model.Deployment, project *model.Project, binding *model.EnvironmentBinding) {
	defer func() {
		if rec := recover(); rec != nil {
			srv.log.Error("orchestration panic",
				zap.Int64("deployment_id", deployment.ID),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			srv.forceFail(deployment, fmt.Sprintf("internal error: %v", rec))
			srv.notifier.Notify(deployment, NotifyFailure, "")
		}
	}()

	if !srv.markProcessing(deployment) {
		return
	}
	srv.record(deployment, model.RecordTypeDispatch, "", fmt.Sprintf("deploy of %s (%s) to %s started",
		project.Name, deployment.Branch, binding.Environment.Name))

	// prepare: resolve the branch head so drift is visible afterwards.
	prepare := srv.startStage(deployment, "prepare")
	if prepare != nil {
		if srv.resolver != nil && project.RepoUrl != "" {
			hash, err := srv.resolver.HeadCommit(ctx, project.RepoUrl, deployment.Branch)
			if err != nil {
				srv.log.Warn("resolving branch head", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
			} else {
				deployment.ExpectedCommit = hash
				srv.db.Model(deployment).Update("expected_commit", hash)
			}
		}
		srv.completeStage(deployment, prepare, true, "", "")
	}

	// dispatch: the remote script is one long blocking call.
	dispatch := srv.startStage(deployment, "dispatch")
	resp, err := srv.client.Deploy(ctx, binding, project, deployment)
	if err != nil {
		detail := failureDetail(0, err.Error())
		srv.completeStage(deployment, dispatch, false, "", err.Error())
		srv.finishFailed(deployment, detail, err.Error())
		return
	}
	srv.completeStage(deployment, dispatch, true, truncate(resp.Body, 4000), "")
	srv.record(deployment, model.RecordTypeDispatch, "dispatch",
		fmt.Sprintf("remote endpoint answered %d in %s", resp.StatusCode, resp.Elapsed.Round(time.Millisecond)))

	// classify: decide the outcome from status, headers and body.
	stage := srv.startStage(deployment, "classify")
	result := classify.Classify(resp.StatusCode, resp.Header, resp.Body)
	srv.record(deployment, model.RecordTypeClassify, "classify",
		fmt.Sprintf("classified as success=%t (http %d)", result.Succeeded, resp.StatusCode))
	if !result.Succeeded {
		detail := failureDetail(resp.StatusCode, resp.Body)
		srv.completeStage(deployment, stage, false, "", fmt.Sprintf("remote reported failure (http %d)", resp.StatusCode))
		srv.finishFailed(deployment, detail, fmt.Sprintf("remote deploy failed with http %d", resp.StatusCode))
		return
	}
	srv.completeStage(deployment, stage, true, "", "")

	hash := classify.ExtractCommitHash(resp.Body)
	if hash == "" {
		hash = deployment.ExpectedCommit
	}
	deployment.CommitHash = hash
	deployment.RunId = classify.ExtractRunId(resp.Body)
	deployment.Output = resp.Body

	// security_scan: policy gate, only reached on classified success.
	stage = srv.startStage(deployment, "security_scan")
	status := model.DeploymentStatusSuccess
	eval, gateErr := srv.gate.Evaluate(ctx, deployment, project, binding)
	switch {
	case gateErr != nil:
		// the code already shipped; a broken gate flags, never fails
		status = model.DeploymentStatusWarnings
		srv.completeStage(deployment, stage, true, "", fmt.Sprintf("gate error: %v", gateErr))
		srv.record(deployment, model.RecordTypeGate, "security_scan", fmt.Sprintf("gate error: %v", gateErr))
	case !eval.CanDeploy:
		status = model.DeploymentStatusWarnings
		srv.completeStage(deployment, stage, true, eval.ViolationMessage, "")
		srv.record(deployment, model.RecordTypeGate, "security_scan",
			fmt.Sprintf("policy %s violated: %s", eval.PolicyApplied, eval.ViolationMessage))
	default:
		srv.completeStage(deployment, stage, true, fmt.Sprintf("policy %s passed", eval.PolicyApplied), "")
		srv.record(deployment, model.RecordTypeGate, "security_scan", fmt.Sprintf("policy %s passed", eval.PolicyApplied))
	}

	srv.finishShipped(deployment, status)
}

func (srv *Service) resolveBinding(projectId, environmentId int64) (*model.Project, *model.EnvironmentBinding, error) {
	var project model.Project
	err := srv.db.First(&project, projectId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errcode.ErrConfiguration.New("project %d not found", projectId)
	}
	if err != nil {
		return nil, nil, ErrDeploy.Wrap(err)
	}
	if !project.Status.IsEnable() {
		return nil, nil, errcode.ErrConfiguration.New("project %d is disabled", projectId)
	}
	var binding model.EnvironmentBinding
	err = srv.db.Preload("Environment").
		Where("project_id = ? AND environment_id = ? AND status = ?", projectId, environmentId, field.StatusEnable).
		First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errcode.ErrConfiguration.New("project %d is not configured for environment %d", projectId, environmentId)
	}
	if err != nil {
		return nil, nil, ErrDeploy.Wrap(err)
	}
	if !binding.Environment.Status.IsEnable() {
		return nil, nil, errcode.ErrConfiguration.New("environment %d is disabled", environmentId)
	}
	return &project, &binding, nil
}

// markProcessing claims the pending attempt. Cancellation races the run
// goroutine, so the transition is conditional: a false return means the
// row left pending concurrently and the run must not proceed.
func (srv *Service) markProcessing(deployment *model.Deployment) bool {
	now := time.Now()
	result := srv.db.Model(deployment).
		Where("status = ?", model.DeploymentStatusPending).
		Updates(map[string]any{
			"status":     model.DeploymentStatusProcessing,
			"started_at": now,
		})
	if result.Error != nil {
		srv.log.Error("marking attempt processing", zap.Error(result.Error), zap.Int64("deployment_id", deployment.ID))
		return false
	}
	if result.RowsAffected == 0 {
		if err := srv.db.First(deployment, deployment.ID).Error; err != nil {
			srv.log.Error("reloading attempt", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
		}
		srv.log.Info("attempt no longer pending, not running",
			zap.Int64("deployment_id", deployment.ID),
			zap.String("status", string(deployment.Status)))
		return false
	}
	deployment.Status = model.DeploymentStatusProcessing
	deployment.StartedAt = &now
	return true
}

// finishShipped records a terminal shipped status, walks any remaining
// stages to success and notifies.
func (srv *Service) finishShipped(deployment *model.Deployment, status model.DeploymentStatus) {
	if err := srv.tracker.CompleteSweep(deployment.ID, ""); err != nil {
		srv.log.Error("sweeping remaining stages", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
	now := time.Now()
	deployment.Status = status
	deployment.CompletedAt = &now
	if err := srv.db.Model(deployment).Updates(map[string]any{
		"status":       status,
		"commit_hash":  deployment.CommitHash,
		"run_id":       deployment.RunId,
		"output":       deployment.Output,
		"completed_at": deployment.CompletedAt,
	}).Error; err != nil {
		srv.log.Error("persisting shipped attempt", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
	outcome := NotifySuccess
	if status == model.DeploymentStatusWarnings {
		srv.record(deployment, model.RecordTypeNotify, "", "finished with warnings")
	} else {
		srv.record(deployment, model.RecordTypeNotify, "", "finished successfully")
	}
	srv.log.Info("attempt shipped",
		zap.Int64("deployment_id", deployment.ID),
		zap.String("status", string(status)),
		zap.String("commit", deployment.CommitHash))
	srv.notifier.Notify(deployment, outcome, "")
}

// finishFailed records a terminal failed status. detail is the structured
// payload persisted for later inspection, message the short human line.
func (srv *Service) finishFailed(deployment *model.Deployment, detail, message string) {
	now := time.Now()
	deployment.Status = model.DeploymentStatusFailed
	deployment.CompletedAt = &now
	deployment.LastError = message
	if err := srv.db.Model(deployment).Updates(map[string]any{
		"status":       model.DeploymentStatusFailed,
		"output":       detail,
		"last_error":   message,
		"completed_at": deployment.CompletedAt,
	}).Error; err != nil {
		srv.log.Error("persisting failed attempt", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
	srv.record(deployment, model.RecordTypeNotify, "", "finished with failure: "+message)
	srv.log.Warn("attempt failed",
		zap.Int64("deployment_id", deployment.ID),
		zap.String("error", message))
	srv.notifier.Notify(deployment, NotifyFailure, "")
}

// forceFail is the last-resort terminal transition used by the panic
// boundary and setup failures; it skips stage bookkeeping niceties.
func (srv *Service) forceFail(deployment *model.Deployment, message string) {
	now := time.Now()
	deployment.Status = model.DeploymentStatusFailed
	deployment.LastError = message
	deployment.CompletedAt = &now
	if err := srv.db.Model(deployment).Updates(map[string]any{
		"status":       model.DeploymentStatusFailed,
		"last_error":   message,
		"completed_at": deployment.CompletedAt,
	}).Error; err != nil {
		srv.log.Error("forcing attempt failed", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
	if err := srv.tracker.CancelPending(deployment.ID); err != nil {
		srv.log.Error("cancelling pending stages", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
}

func (srv *Service) startStage(deployment *model.Deployment, name string) *model.PipelineStage {
	stage, err := srv.tracker.FindByName(deployment.ID, name)
	if err != nil {
		srv.log.Error("loading stage", zap.Error(err), zap.String("stage", name), zap.Int64("deployment_id", deployment.ID))
		return nil
	}
	if err := srv.tracker.Start(stage); err != nil {
		srv.log.Error("starting stage", zap.Error(err), zap.String("stage", name), zap.Int64("deployment_id", deployment.ID))
		return nil
	}
	srv.record(deployment, model.RecordTypeStage, name, "stage started")
	return stage
}

func (srv *Service) completeStage(deployment *model.Deployment, stage *model.PipelineStage, success bool, output, errorMessage string) {
	if stage == nil {
		return
	}
	if err := srv.tracker.Complete(stage, success, output, errorMessage); err != nil {
		srv.log.Error("completing stage", zap.Error(err), zap.String("stage", stage.Name), zap.Int64("deployment_id", deployment.ID))
		return
	}
	srv.record(deployment, model.RecordTypeStage, stage.Name, fmt.Sprintf("stage finished with status %s", stage.Status))
}

// record appends one attempt-scoped log row. Record failures are logged
// and swallowed, the attempt outcome never depends on them.
func (srv *Service) record(deployment *model.Deployment, recordType int, stage, content string) {
	row := &model.Record{
		Type:         recordType,
		DeploymentId: deployment.ID,
		Stage:        stage,
		Status:       int(statusCode(deployment.Status)),
		Content:      content,
	}
	if deployment.UserId != nil {
		row.UserId = *deployment.UserId
	}
	if err := srv.db.Create(row).Error; err != nil {
		srv.log.Error("appending record", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
	}
}

func statusCode(status model.DeploymentStatus) int64 {
	switch status {
	case model.DeploymentStatusPending:
		return 0
	case model.DeploymentStatusProcessing:
		return 1
	case model.DeploymentStatusSuccess:
		return 2
	case model.DeploymentStatusWarnings:
		return 3
	case model.DeploymentStatusFailed:
		return 4
	case model.DeploymentStatusCancelled:
		return 5
	}
	return -1
}

// failureDetail is the structured payload stored on failed attempts.
func failureDetail(statusCode int, body string) string {
	payload := map[string]any{
		"status_code": statusCode,
		"body":        truncate(body, 8000),
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return string(out)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}

// Cancel aborts an attempt that has not started running. Anything past
// pending is already talking to the remote host and cannot be recalled.
func (srv *Service) Cancel(deploymentId int64) error {
	result := srv.db.Model(&model.Deployment{}).
		Where("id = ? AND status = ?", deploymentId, model.DeploymentStatusPending).
		Updates(map[string]any{"status": model.DeploymentStatusCancelled, "completed_at": time.Now()})
	if result.Error != nil {
		return ErrDeploy.Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return errcode.ErrPrecondition.New("deployment %d is not pending", deploymentId)
	}
	return srv.tracker.CancelPending(deploymentId)
}

// Detail loads one attempt with its stages and findings.
func (srv *Service) Detail(deploymentId int64) (*model.Deployment, error) {
	var deployment model.Deployment
	err := srv.db.Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Findings").
		Preload("Project").
		Preload("Environment").
		First(&deployment, deploymentId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrPrecondition.New("deployment %d not found", deploymentId)
	}
	if err != nil {
		return nil, ErrDeploy.Wrap(err)
	}
	return &deployment, nil
}

// List returns a page of attempts for a project, newest first.
func (srv *Service) List(projectId int64, page, pageSize int) ([]*model.Deployment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query := srv.db.Model(&model.Deployment{}).Where("project_id = ?", projectId)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, ErrDeploy.Wrap(err)
	}
	var rows []*model.Deployment
	err := query.Preload("Environment").Preload("User").
		Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, ErrDeploy.Wrap(err)
	}
	return rows, total, nil
}

// Records returns the attempt-scoped log after the given record id, for
// console replay and tailing.
func (srv *Service) Records(deploymentId, afterId int64) ([]*model.Record, error) {
	var rows []*model.Record
	err := srv.db.Where("deployment_id = ? AND id > ?", deploymentId, afterId).
		Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, ErrDeploy.Wrap(err)
	}
	return rows, nil
}

// Busy reports whether the pair currently has an attempt in flight.
func (srv *Service) Busy(projectId, environmentId int64) bool {
	return srv.reg.busy(projectId, environmentId)
}
