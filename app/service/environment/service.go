package environment

import (
	"errors"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

var (
	ErrEnvironment = errs.Class("environment")

	service *Service
	once    sync.Once
)

type Service struct {
	log *zap.Logger
	db  *gorm.DB
}

func NewService(log *zap.Logger, db *gorm.DB) *Service {
	once.Do(func() {
		service = &Service{log: log, db: db}
	})
	return service
}

type SaveReq struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name" binding:"required,max=100"`
	Slug        string       `json:"slug" binding:"required,max=100"`
	BasePath    string       `json:"base_path" binding:"max=500"`
	NetworkPath string       `json:"network_path" binding:"max=500"`
	WebUrl      string       `json:"web_url" binding:"omitempty,url"`
	DeployUrl   string       `json:"deploy_url" binding:"omitempty,url"`
	Status      field.Status `json:"status"`
	SortOrder   int          `json:"sort_order"`
	Description string       `json:"description" binding:"max=500"`
}

func (srv *Service) Save(params *SaveReq) (*model.Environment, error) {
	env := &model.Environment{
		ID:          params.ID,
		Name:        params.Name,
		Slug:        params.Slug,
		BasePath:    params.BasePath,
		NetworkPath: params.NetworkPath,
		WebUrl:      params.WebUrl,
		DeployUrl:   params.DeployUrl,
		Status:      params.Status,
		SortOrder:   params.SortOrder,
		Description: params.Description,
	}
	var err error
	if env.ID > 0 {
		err = srv.db.Save(env).Error
	} else {
		err = srv.db.Create(env).Error
	}
	if err != nil {
		return nil, ErrEnvironment.Wrap(err)
	}
	return env, nil
}

func (srv *Service) Detail(environmentId int64) (*model.Environment, error) {
	var env model.Environment
	err := srv.db.First(&env, environmentId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrPrecondition.New("environment %d not found", environmentId)
	}
	if err != nil {
		return nil, ErrEnvironment.Wrap(err)
	}
	return &env, nil
}

func (srv *Service) List() ([]*model.Environment, error) {
	var rows []*model.Environment
	if err := srv.db.Order("sort_order ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, ErrEnvironment.Wrap(err)
	}
	return rows, nil
}

// Delete refuses while any active binding still points here.
func (srv *Service) Delete(environmentId int64) error {
	var count int64
	err := srv.db.Model(&model.EnvironmentBinding{}).
		Where("environment_id = ? AND status = ?", environmentId, field.StatusEnable).
		Count(&count).Error
	if err != nil {
		return ErrEnvironment.Wrap(err)
	}
	if count > 0 {
		return errcode.ErrPrecondition.New("environment %d still has %d active bindings", environmentId, count)
	}
	return ErrEnvironment.Wrap(srv.db.Delete(&model.Environment{}, environmentId).Error)
}
