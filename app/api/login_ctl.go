package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	ctx2 "go-shipper/app/api/ctx"
	"go-shipper/app/internal/response"
	"go-shipper/app/service/user"
)

type LoginCtl struct {
	service *user.Service
}

func (ctl *LoginCtl) Login(ctx *gin.Context) {
	params := user.LoginReq{}
	err := ctx.ShouldBindJSON(&params)
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	res, err := ctl.service.Login(&params)
	response.Response(ctx, err, res)
}

func (ctl *LoginCtl) Logout(ctx *gin.Context) {
	response.Response(ctx, ctl.service.Logout(ctx2.UserId(ctx)), nil)
}

func (ctl *LoginCtl) RefreshToken(ctx *gin.Context) {
	params := user.RefreshTokenReq{}
	err := ctx.ShouldBindJSON(&params)
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	res, err := ctl.service.RefreshToken(&params)
	response.Response(ctx, err, res)
}

func (ctl *LoginCtl) UserInfo(ctx *gin.Context) {
	res, err := ctl.service.UserInfo(ctx2.UserId(ctx))
	response.Response(ctx, err, res)
}

func (ctl *LoginCtl) Notifications(ctx *gin.Context) {
	onlyUnread := ctx.Query("unread") == "1"
	res, err := ctl.service.Notifications(ctx2.UserId(ctx), onlyUnread)
	response.Response(ctx, err, res)
}

func (ctl *LoginCtl) ReadNotification(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		response.Fail(ctx, err)
		return
	}
	response.Response(ctx, ctl.service.MarkNotificationRead(ctx2.UserId(ctx), id), nil)
}
