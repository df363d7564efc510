package jwt

import (
	"time"

	jwtgo "github.com/form3tech-oss/jwt-go"
	"github.com/zeebo/errs"
)

var ErrJwt = errs.Class("jwt")

type Config struct {
	Secret        string        `help:"signing secret" default:"change-me"`
	Expire        time.Duration `help:"access token lifetime" default:"2h"`
	RefreshExpire time.Duration `help:"refresh token lifetime" default:"168h"`
	Issuer        string        `help:"token issuer" default:"go-shipper"`
}

type TokenPayload struct {
	UserId    int64
	Email     string
	Username  string
	IsRefresh bool
}

type Claims struct {
	TokenPayload
	jwtgo.StandardClaims
}

type Jwt struct {
	conf *Config
}

func NewJWT(conf *Config) (*Jwt, error) {
	if conf.Secret == "" {
		return nil, ErrJwt.New("empty signing secret")
	}
	return &Jwt{conf: conf}, nil
}

func (j *Jwt) CreateToken(payload TokenPayload) (string, time.Time, error) {
	return j.create(payload, j.conf.Expire)
}

func (j *Jwt) CreateRefreshToken(payload TokenPayload) (string, time.Time, error) {
	payload.IsRefresh = true
	return j.create(payload, j.conf.RefreshExpire)
}

func (j *Jwt) create(payload TokenPayload, ttl time.Duration) (string, time.Time, error) {
	expire := time.Now().Add(ttl)
	claims := Claims{
		TokenPayload: payload,
		StandardClaims: jwtgo.StandardClaims{
			Issuer:    j.conf.Issuer,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: expire.Unix(),
		},
	}
	token := jwtgo.NewWithClaims(jwtgo.SigningMethodHS256, claims)
	str, err := token.SignedString([]byte(j.conf.Secret))
	return str, expire, ErrJwt.Wrap(err)
}

func (j *Jwt) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwtgo.ParseWithClaims(tokenStr, claims, func(t *jwtgo.Token) (any, error) {
		if _, ok := t.Method.(*jwtgo.SigningMethodHMAC); !ok {
			return nil, ErrJwt.New("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(j.conf.Secret), nil
	})
	if err != nil {
		return nil, ErrJwt.Wrap(err)
	}
	if !token.Valid {
		return nil, ErrJwt.New("invalid token")
	}
	return claims, nil
}
