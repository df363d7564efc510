package user

import (
	"errors"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/pkg/jwt"
)

var (
	ErrUser = errs.Class("user")

	service *Service
	once    sync.Once
)

type Service struct {
	log *zap.Logger
	db  *gorm.DB
	jwt *jwt.Jwt
}

func NewService(log *zap.Logger, db *gorm.DB, jwt *jwt.Jwt) *Service {
	once.Do(func() {
		service = &Service{
			log: log,
			db:  db,
			jwt: jwt,
		}
	})
	return service
}

type LoginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=50"`
}

type TokenRes struct {
	Token         string    `json:"token"`
	Expire        time.Time `json:"expire"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpire time.Time `json:"refresh_expire"`
}

type LoginRes struct {
	TokenRes
	UserInfo UserInfoRes `json:"user_info"`
}

type UserInfoRes struct {
	UserId   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type RefreshTokenReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (srv *Service) Login(params *LoginReq) (*LoginRes, error) {
	var mUser model.User
	err := srv.db.Where("email = ?", params.Email).First(&mUser).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrInvalidPwd
	}
	if err != nil {
		return nil, ErrUser.Wrap(err)
	}
	if bcrypt.CompareHashAndPassword(mUser.Password, []byte(params.Password)) != nil {
		return nil, errcode.ErrInvalidPwd
	}
	if !mUser.Status.IsEnable() {
		return nil, errcode.ErrUserDisabled
	}
	tokens, err := srv.createTokens(&mUser)
	if err != nil {
		return nil, err
	}
	srv.log.Info("user logged in", zap.Int64("user_id", mUser.ID), zap.String("email", mUser.Email))
	return &LoginRes{
		TokenRes: *tokens,
		UserInfo: UserInfoRes{
			UserId:   mUser.ID,
			Username: mUser.Username,
			Email:    mUser.Email,
			Role:     mUser.Role,
		},
	}, nil
}

func (srv *Service) Logout(userId int64) error {
	return ErrUser.Wrap(srv.db.Model(&model.User{}).
		Where("id = ?", userId).
		Update("remember_token", "").Error)
}

func (srv *Service) RefreshToken(params *RefreshTokenReq) (*TokenRes, error) {
	claims, err := srv.jwt.ValidateToken(params.RefreshToken)
	if err != nil || !claims.IsRefresh {
		return nil, errcode.ErrUnauthorized
	}
	mUser, err := srv.Detail(claims.UserId)
	if err != nil {
		return nil, err
	}
	if !mUser.Status.IsEnable() {
		return nil, errcode.ErrUserDisabled
	}
	return srv.createTokens(mUser)
}

func (srv *Service) createTokens(mUser *model.User) (*TokenRes, error) {
	payload := jwt.TokenPayload{
		UserId:   mUser.ID,
		Email:    mUser.Email,
		Username: mUser.Username,
	}
	token, expire, err := srv.jwt.CreateToken(payload)
	if err != nil {
		return nil, ErrUser.Wrap(err)
	}
	refresh, refreshExpire, err := srv.jwt.CreateRefreshToken(payload)
	if err != nil {
		return nil, ErrUser.Wrap(err)
	}
	return &TokenRes{
		Token:         token,
		Expire:        expire,
		RefreshToken:  refresh,
		RefreshExpire: refreshExpire,
	}, nil
}

func (srv *Service) Detail(userId int64) (*model.User, error) {
	var mUser model.User
	err := srv.db.First(&mUser, userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrUnauthorized
	}
	if err != nil {
		return nil, ErrUser.Wrap(err)
	}
	return &mUser, nil
}

func (srv *Service) UserInfo(userId int64) (*UserInfoRes, error) {
	mUser, err := srv.Detail(userId)
	if err != nil {
		return nil, err
	}
	return &UserInfoRes{
		UserId:   mUser.ID,
		Username: mUser.Username,
		Email:    mUser.Email,
		Role:     mUser.Role,
	}, nil
}

// Capability computes what the user may do; the API layer attaches it to
// orchestrator calls.
func (srv *Service) Capability(userId int64) (constants.Capability, error) {
	if constants.IsSuperUser(userId) {
		return constants.CapabilityFor(constants.RoleAdmin), nil
	}
	mUser, err := srv.Detail(userId)
	if err != nil {
		return constants.Capability{}, err
	}
	if !mUser.Status.IsEnable() {
		return constants.Capability{}, errcode.ErrUserDisabled
	}
	return constants.CapabilityFor(constants.Role(mUser.Role)), nil
}

// Notifications returns the user's in-app feed, newest first.
func (srv *Service) Notifications(userId int64, onlyUnread bool) ([]*model.Notification, error) {
	query := srv.db.Where("user_id = ?", userId)
	if onlyUnread {
		query = query.Where("read_at IS NULL")
	}
	var rows []*model.Notification
	if err := query.Order("id DESC").Limit(100).Find(&rows).Error; err != nil {
		return nil, ErrUser.Wrap(err)
	}
	return rows, nil
}

func (srv *Service) MarkNotificationRead(userId, notificationId int64) error {
	result := srv.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationId, userId).
		Update("read_at", time.Now())
	if result.Error != nil {
		return ErrUser.Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return errcode.ErrPrecondition.New("notification %d not found or already read", notificationId)
	}
	return nil
}
