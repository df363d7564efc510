package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/internal/response"
	"go-shipper/app/service/secscan"
)

type PolicyCtl struct {
	gate *secscan.Gate
}

func (ctl *PolicyCtl) Save(ctx *gin.Context) {
	params := secscan.PolicyReq{}
	if err := ctx.ShouldBindJSON(&params); err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	res, err := ctl.gate.SavePolicy(&params)
	response.Response(ctx, err, res)
}

func (ctl *PolicyCtl) List(ctx *gin.Context) {
	res, err := ctl.gate.ListPolicies()
	response.Response(ctx, err, res)
}

func (ctl *PolicyCtl) Delete(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, errcode.ErrInvalidParams.Wrap(err))
		return
	}
	response.Response(ctx, ctl.gate.DeletePolicy(id), nil)
}
