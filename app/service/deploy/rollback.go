package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/service/classify"
	"go-shipper/app/service/pipeline"
)

// RollbackParams is one rollback order against a previously shipped
// attempt of the same project.
type RollbackParams struct {
	ProjectId  int64
	TargetId   int64
	Reason     string
	Actor      *model.User
	Capability constants.Capability
}

// Rollback re-points an environment at the commit of an earlier successful
// attempt. All target validation happens before any attempt row exists: a
// rejected rollback leaves no trace in the attempt history.
func (srv *Service) Rollback(ctx context.Context, params *RollbackParams) (*model.Deployment, error) {
	deployment, project, binding, target, err := srv.beginRollback(params)
	if err != nil {
		return nil, err
	}
	defer srv.reg.release(deployment.ProjectId, deployment.EnvironmentId)
	if deployment.Status.Terminal() {
		return deployment, nil
	}
	srv.runRollback(ctx, deployment, project, binding, target)
	return deployment, nil
}

// RollbackAsync is the API-facing variant: validation is synchronous, the
// remote call runs in the background.
func (srv *Service) RollbackAsync(params *RollbackParams) (*model.Deployment, error) {
	deployment, project, binding, target, err := srv.beginRollback(params)
	if err != nil {
		return nil, err
	}
	if deployment.Status.Terminal() {
		srv.reg.release(deployment.ProjectId, deployment.EnvironmentId)
		return deployment, nil
	}
	go func() {
		defer srv.reg.release(deployment.ProjectId, deployment.EnvironmentId)
		srv.runRollback(context.Background(), deployment, project, binding, target)
	}()
	return deployment, nil
}

func (srv *Service) beginRollback(params *RollbackParams) (*model.Deployment, *model.Project, *model.EnvironmentBinding, *model.Deployment, error) {
	if !params.Capability.CanRollback {
		return nil, nil, nil, nil, errcode.ErrForbidden
	}
	var target model.Deployment
	err := srv.db.First(&target, params.TargetId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil, nil, errcode.ErrPrecondition.New("rollback target %d not found", params.TargetId)
	}
	if err != nil {
		return nil, nil, nil, nil, ErrDeploy.Wrap(err)
	}
	if target.ProjectId != params.ProjectId {
		return nil, nil, nil, nil, errcode.ErrPrecondition.New("rollback target %d belongs to another project", params.TargetId)
	}
	if target.Status != model.DeploymentStatusSuccess {
		return nil, nil, nil, nil, errcode.ErrPrecondition.New("rollback target %d did not finish successfully", params.TargetId)
	}
	if target.CommitHash == "" {
		return nil, nil, nil, nil, errcode.ErrPrecondition.New("rollback target %d recorded no commit hash", params.TargetId)
	}
	project, binding, err := srv.resolveBinding(target.ProjectId, target.EnvironmentId)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if binding.RollbackUrl == "" {
		return nil, nil, nil, nil, errcode.ErrConfiguration.New("no rollback endpoint configured for project %d environment %d",
			target.ProjectId, target.EnvironmentId)
	}
	if err = srv.reg.acquire(target.ProjectId, target.EnvironmentId); err != nil {
		return nil, nil, nil, nil, err
	}

	deployment := &model.Deployment{
		Reference:        uuid.NewString(),
		ProjectId:        target.ProjectId,
		EnvironmentId:    target.EnvironmentId,
		Kind:             model.KindRollback,
		Status:           model.DeploymentStatusPending,
		Branch:           target.Branch,
		ExpectedCommit:   target.CommitHash,
		RollbackTargetId: &target.ID,
		RollbackReason:   params.Reason,
	}
	if params.Actor != nil {
		deployment.UserId = &params.Actor.ID
	}
	if err = srv.db.Create(deployment).Error; err != nil {
		srv.reg.release(target.ProjectId, target.EnvironmentId)
		return nil, nil, nil, nil, ErrDeploy.Wrap(err)
	}
	if _, err = srv.tracker.CreateStages(deployment.ID, pipeline.RollbackStages); err != nil {
		srv.forceFail(deployment, fmt.Sprintf("creating pipeline: %v", err))
	}
	return deployment, project, binding, &target, nil
}

func (srv *Service) runRollback(ctx context.Context, deployment *model.Deployment, project *model.Project, binding *model.EnvironmentBinding, target *model.Deployment) {
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
	srv.record(deployment, model.RecordTypeDispatch, "", fmt.Sprintf("rollback of %s to %.12s started (target attempt %d)",
		project.Name, target.CommitHash, target.ID))

	prepare := srv.startStage(deployment, "prepare")
	srv.completeStage(deployment, prepare, true, fmt.Sprintf("target commit %s", target.CommitHash), "")

	dispatch := srv.startStage(deployment, "dispatch")
	resp, err := srv.client.Rollback(ctx, binding, deployment, target)
	if err != nil {
		detail := failureDetail(0, err.Error())
		srv.completeStage(deployment, dispatch, false, "", err.Error())
		srv.finishFailed(deployment, detail, err.Error())
		return
	}
	srv.completeStage(deployment, dispatch, true, truncate(resp.Body, 4000), "")

	stage := srv.startStage(deployment, "classify")
	result := classify.Classify(resp.StatusCode, resp.Header, resp.Body)
	srv.record(deployment, model.RecordTypeClassify, "classify",
		fmt.Sprintf("classified as success=%t (http %d)", result.Succeeded, resp.StatusCode))
	if !result.Succeeded {
		message := rollbackFailureMessage(resp.StatusCode)
		detail := failureDetail(resp.StatusCode, resp.Body)
		srv.completeStage(deployment, stage, false, "", message)
		srv.finishFailed(deployment, detail, message)
		return
	}
	srv.completeStage(deployment, stage, true, "", "")

	hash := classify.ExtractRollbackCommit(resp.Body)
	if hash == "" {
		hash = target.CommitHash
	}
	deployment.CommitHash = hash
	deployment.RunId = classify.ExtractRunId(resp.Body)
	deployment.Output = resp.Body

	srv.finishShipped(deployment, model.DeploymentStatusSuccess)
}

// rollbackFailureMessage translates the endpoint's status code into the
// operator-facing diagnosis. The mapping is descriptive only, every
// non-success lands the attempt in the same failed state.
func rollbackFailureMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "rollback endpoint not found on the remote host"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "rollback endpoint rejected the shared token"
	case http.StatusBadRequest:
		return "rollback script rejected the request"
	case 0:
		return "rollback endpoint unreachable"
	default:
		return fmt.Sprintf("rollback endpoint answered http %d", status)
	}
}

// LatestSuccess returns the newest successful deploy of the pair, the
// default rollback target offered by the UI.
func (srv *Service) LatestSuccess(projectId, environmentId int64) (*model.Deployment, error) {
	var deployment model.Deployment
	err := srv.db.Where("project_id = ? AND environment_id = ? AND kind = ? AND status = ?",
		projectId, environmentId, model.KindDeploy, model.DeploymentStatusSuccess).
		Order("id DESC").First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrPrecondition.New("no successful deploy to roll back to")
	}
	if err != nil {
		return nil, ErrDeploy.Wrap(err)
	}
	return &deployment, nil
}
