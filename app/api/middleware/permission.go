package middleware

import (
	"github.com/gin-gonic/gin"

	ctx2 "go-shipper/app/api/ctx"
	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/service/user"
)

// Permission rejects users below the required role.
func Permission(userService *user.Service, role constants.Role) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		userId := ctx2.UserId(ctx)
		if !constants.IsSuperUser(userId) {
			mUser, err := userService.Detail(userId)
			if err != nil {
				_ = ctx.AbortWithError(401, errcode.ErrUnauthorized)
				return
			}
			if constants.Role(mUser.Role).Level() < role.Level() {
				_ = ctx.AbortWithError(403, errcode.ErrForbidden)
				return
			}
		}
		ctx.Next()
	}
}
