package project

import (
	"context"
	"errors"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
	"go-shipper/app/pkg/scripts"
)

var (
	ErrProject = errs.Class("project")

	service *Service
	once    sync.Once
)

type Service struct {
	log     *zap.Logger
	db      *gorm.DB
	scripts *scripts.Generator
}

func NewService(log *zap.Logger, db *gorm.DB, generator *scripts.Generator) *Service {
	once.Do(func() {
		service = &Service{log: log, db: db, scripts: generator}
	})
	return service
}

type BindingReq struct {
	EnvironmentId int64  `json:"environment_id" binding:"required"`
	DeployUrl     string `json:"deploy_url" binding:"omitempty,url"`
	RollbackUrl   string `json:"rollback_url" binding:"omitempty,url"`
	AppUrl        string `json:"app_url" binding:"omitempty,url"`
	ProjectPath   string `json:"project_path" binding:"max=500"`
	Branch        string `json:"branch" binding:"max=100"`
}

type SaveReq struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name" binding:"required,max=100"`
	RepoUrl     string       `json:"repo_url" binding:"max=500"`
	Branch      string       `json:"branch" binding:"max=100"`
	AccessToken string       `json:"access_token" binding:"max=200"`
	Status      field.Status `json:"status"`
	Description string       `json:"description" binding:"max=500"`
	Bindings    []BindingReq `json:"bindings" binding:"dive"`
}

// Save creates or updates a project together with its environment
// bindings, then materializes the per-binding deploy and rollback scripts.
// Script placement failures are logged, not returned: the project exists
// either way and the gap surfaces on the first deploy.
func (srv *Service) Save(ctx context.Context, params *SaveReq) (*model.Project, error) {
	proj := &model.Project{
		ID:          params.ID,
		Name:        params.Name,
		RepoUrl:     params.RepoUrl,
		Branch:      params.Branch,
		AccessToken: params.AccessToken,
		Status:      params.Status,
		Description: params.Description,
	}
	if proj.Branch == "" {
		proj.Branch = "master"
	}
	err := srv.db.Transaction(func(tx *gorm.DB) error {
		if proj.ID > 0 {
			if err := tx.Save(proj).Error; err != nil {
				return err
			}
		} else if err := tx.Create(proj).Error; err != nil {
			return err
		}
		for _, b := range params.Bindings {
			binding := model.EnvironmentBinding{
				ProjectId:     proj.ID,
				EnvironmentId: b.EnvironmentId,
				DeployUrl:     b.DeployUrl,
				RollbackUrl:   b.RollbackUrl,
				AppUrl:        b.AppUrl,
				ProjectPath:   b.ProjectPath,
				Branch:        b.Branch,
				Status:        field.StatusEnable,
			}
			err := tx.Where("project_id = ? AND environment_id = ?", proj.ID, b.EnvironmentId).
				Assign(map[string]any{
					"deploy_url":   b.DeployUrl,
					"rollback_url": b.RollbackUrl,
					"app_url":      b.AppUrl,
					"project_path": b.ProjectPath,
					"branch":       b.Branch,
					"status":       field.StatusEnable,
				}).
				FirstOrCreate(&binding).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ErrProject.Wrap(err)
	}
	srv.materialize(ctx, proj)
	return proj, nil
}

func (srv *Service) materialize(ctx context.Context, proj *model.Project) {
	if srv.scripts == nil {
		return
	}
	var bindings []*model.EnvironmentBinding
	err := srv.db.Preload("Environment").
		Where("project_id = ? AND status = ?", proj.ID, field.StatusEnable).
		Find(&bindings).Error
	if err != nil {
		srv.log.Error("loading bindings for script placement", zap.Error(err), zap.Int64("project_id", proj.ID))
		return
	}
	for _, binding := range bindings {
		err = srv.scripts.Materialize(ctx, scripts.Context{
			Project:     proj,
			Environment: &binding.Environment,
			Binding:     binding,
		})
		if err != nil {
			srv.log.Error("placing scripts",
				zap.Error(err),
				zap.Int64("project_id", proj.ID),
				zap.Int64("environment_id", binding.EnvironmentId))
		}
	}
}

func (srv *Service) Detail(projectId int64) (*model.Project, error) {
	var proj model.Project
	err := srv.db.Preload("Bindings.Environment").First(&proj, projectId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcode.ErrPrecondition.New("project %d not found", projectId)
	}
	if err != nil {
		return nil, ErrProject.Wrap(err)
	}
	return &proj, nil
}

func (srv *Service) List(page, pageSize int) ([]*model.Project, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := srv.db.Model(&model.Project{}).Count(&total).Error; err != nil {
		return nil, 0, ErrProject.Wrap(err)
	}
	var rows []*model.Project
	err := srv.db.Preload("Bindings").
		Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, ErrProject.Wrap(err)
	}
	return rows, total, nil
}

func (srv *Service) Delete(projectId int64) error {
	return ErrProject.Wrap(srv.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.EnvironmentBinding{}).
			Where("project_id = ?", projectId).
			Update("status", field.StatusDisable).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Project{}, projectId).Error
	}))
}
