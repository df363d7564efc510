package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	ctx2 "go-shipper/app/api/ctx"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/model"
	"go-shipper/app/service/schedule"
	"go-shipper/app/service/user"
)

type ScheduleCtl struct {
	service     *schedule.Service
	userService *user.Service
}

type createScheduleReq struct {
	ProjectId     int64     `json:"project_id" binding:"required"`
	EnvironmentId int64     `json:"environment_id" binding:"required"`
	ScheduledAt   time.Time `json:"scheduled_at" binding:"required"`
	Recurrence    string    `json:"recurrence" binding:"recurrence"`
}

func (ctl *ScheduleCtl) Create(ctx *gin.Context) {
	params := createScheduleReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	mUser, err := ctl.userService.Detail(ctx2.UserId(ctx))
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	res, err := ctl.service.Create(&schedule.CreateParams{
		ProjectId:     params.ProjectId,
		EnvironmentId: params.EnvironmentId,
		ScheduledAt:   params.ScheduledAt,
		Recurrence:    model.Recurrence(params.Recurrence),
		Actor:         mUser,
	})
	response.Response(ctx, err, res)
}

func (ctl *ScheduleCtl) List(ctx *gin.Context) {
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

func (ctl *ScheduleCtl) Detail(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Detail(id)
	response.Response(ctx, err, res)
}

func (ctl *ScheduleCtl) Cancel(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	response.Response(ctx, ctl.service.Cancel(id), nil)
}
