package ctx

import (
	"strings"

	"github.com/gin-gonic/gin"

	"go-shipper/app/global"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/pkg/jwt"
)

const claimsKey = "auth_claims"

// ValidateBearerToken checks the Authorization header and caches the
// parsed claims on the request context.
func ValidateBearerToken(ctx *gin.Context) (*jwt.Claims, error) {
	header := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errcode.ErrUnauthorized
	}
	claims, err := global.Jwt.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil, errcode.ErrUnauthorized
	}
	ctx.Set(claimsKey, claims)
	return claims, nil
}

func Claims(ctx *gin.Context) *jwt.Claims {
	if v, ok := ctx.Get(claimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}

func UserId(ctx *gin.Context) int64 {
	if claims := Claims(ctx); claims != nil {
		return claims.UserId
	}
	return 0
}
