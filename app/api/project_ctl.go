package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/service/project"
)

type ProjectCtl struct {
	service *project.Service
}

func (ctl *ProjectCtl) Save(ctx *gin.Context) {
	params := project.SaveReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Save(ctx.Request.Context(), &params)
	response.Response(ctx, err, res)
}

func (ctl *ProjectCtl) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	rows, total, err := ctl.service.List(page, pageSize)
	response.Response(ctx, err, gin.H{"total": total, "list": rows})
}

func (ctl *ProjectCtl) Detail(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.service.Detail(id)
	response.Response(ctx, err, res)
}

func (ctl *ProjectCtl) Delete(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	response.Response(ctx, ctl.service.Delete(id), nil)
}
