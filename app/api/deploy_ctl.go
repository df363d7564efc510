package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	ctx2 "go-shipper/app/api/ctx"
	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/model"
	"go-shipper/app/service/deploy"
	"go-shipper/app/service/user"
)

type DeployCtl struct {
	service     *deploy.Service
	userService *user.Service
}

type createDeployReq struct {
	ProjectId     int64  `json:"project_id" binding:"required"`
	EnvironmentId int64  `json:"environment_id" binding:"required"`
	Branch        string `json:"branch" binding:"max=100"`
}

type createRollbackReq struct {
	ProjectId int64  `json:"project_id" binding:"required"`
	TargetId  int64  `json:"target_id" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

// actor loads the calling user and the capability attached to every
// orchestrator call.
func (ctl *DeployCtl) actor(ctx *gin.Context) (*model.User, constants.Capability, error) {
	userId := ctx2.UserId(ctx)
	mUser, err := ctl.userService.Detail(userId)
	if err != nil {
		return nil, constants.Capability{}, err
	}
	capability, err := ctl.userService.Capability(userId)
	if err != nil {
		return nil, constants.Capability{}, err
	}
	return mUser, capability, nil
}

func (ctl *DeployCtl) Create(ctx *gin.Context) {
	params := createDeployReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	mUser, capability, err := ctl.actor(ctx)
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	res, err := ctl.service.DeployAsync(&deploy.DeployParams{
		ProjectId:     params.ProjectId,
		EnvironmentId: params.EnvironmentId,
		Branch:        params.Branch,
		Actor:         mUser,
		Capability:    capability,
	})
	response.Response(ctx, err, res)
}

func (ctl *DeployCtl) Rollback(ctx *gin.Context) {
	params := createRollbackReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	mUser, capability, err := ctl.actor(ctx)
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	res, err := ctl.service.RollbackAsync(&deploy.RollbackParams{
		ProjectId:  params.ProjectId,
		TargetId:   params.TargetId,
		Reason:     params.Reason,
		Actor:      mUser,
		Capability: capability,
	})
	response.Response(ctx, err, res)
}

func (ctl *DeployCtl) List(ctx *gin.Context) {
	projectId, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	rows, total, err := ctl.service.List(projectId, page, pageSize)
	response.Response(ctx, err, gin.H{"total": total, "list": rows})
}

func (ctl *DeployCtl) Detail(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Detail(id)
	response.Response(ctx, err, res)
}

func (ctl *DeployCtl) Cancel(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	response.Response(ctx, ctl.service.Cancel(id), nil)
}

func (ctl *DeployCtl) LatestSuccess(ctx *gin.Context) {
	projectId, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	environmentId, err := strconv.ParseInt(ctx.Query("environment_id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.LatestSuccess(projectId, environmentId)
	response.Response(ctx, err, res)
}
