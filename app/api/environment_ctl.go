package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/service/environment"
)

type EnvironmentCtl struct {
	service *environment.Service
}

func (ctl *EnvironmentCtl) Save(ctx *gin.Context) {
	params := environment.SaveReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Save(&params)
	response.Response(ctx, err, res)
}

func (ctl *EnvironmentCtl) List(ctx *gin.Context) {
	res, err := ctl.service.List()
	response.Response(ctx, err, res)
}

func (ctl *EnvironmentCtl) Detail(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Detail(id)
	response.Response(ctx, err, res)
}

func (ctl *EnvironmentCtl) Delete(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	response.Response(ctx, ctl.service.Delete(id), nil)
}
