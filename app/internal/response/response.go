package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/service/deploy"
)

type body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func Ok(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, body{Code: 0, Message: "ok", Data: data})
}

func Fail(ctx *gin.Context, err error) {
	ctx.JSON(statusFor(err), body{Code: 1, Message: err.Error()})
}

func Response(ctx *gin.Context, err error, data any) {
	if err != nil {
		Fail(ctx, err)
		return
	}
	Ok(ctx, data)
}

// statusFor maps the error taxonomy onto HTTP statuses. Unknown errors
// stay 500 so misconfiguration never masquerades as a client mistake.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errcode.ErrUnauthorized), errors.Is(err, errcode.ErrInvalidPwd):
		return http.StatusUnauthorized
	case errors.Is(err, errcode.ErrForbidden), errors.Is(err, errcode.ErrUserDisabled):
		return http.StatusForbidden
	case errcode.ErrInvalidParams.Has(err), errcode.ErrRequest.Has(err):
		return http.StatusBadRequest
	case errcode.ErrPrecondition.Has(err), deploy.ErrBusy.Has(err):
		return http.StatusConflict
	case errcode.ErrConfiguration.Has(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
