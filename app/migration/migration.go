package migration

import (
	"fmt"

	"github.com/wuzfei/go-helper/rand"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-shipper/app/internal/constants"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

type Migration struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMigration(log *zap.Logger, db *gorm.DB) *Migration {
	return &Migration{
		db:  db,
		log: log,
	}
}

func (m *Migration) Setup() error {
	err := m.createTables()
	if err != nil {
		return err
	}
	return m.initUser()
}

func (m *Migration) createTables() error {
	err := m.db.AutoMigrate(
		&model.User{},
		&model.Environment{},
		&model.Project{},
		&model.EnvironmentBinding{},
		&model.Deployment{},
		&model.PipelineStage{},
		&model.ScheduledDeployment{},
		&model.SecurityPolicy{},
		&model.VulnerabilityFinding{},
		&model.Notification{},
		&model.Record{},
	)
	if err != nil {
		m.log.Error("creating tables failed", zap.Error(err))
	}
	return err
}

func (m *Migration) initUser() error {
	defPwd := []byte(rand.StringN(12))
	_pwd, _ := bcrypt.GenerateFromPassword(defPwd, bcrypt.DefaultCost)
	mUser := model.User{
		ID:       constants.SuperUserId,
		Username: "admin",
		Email:    "admin@example.com",
		Password: _pwd,
		Role:     string(constants.RoleAdmin),
		Status:   field.StatusEnable,
	}
	err := m.db.Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&mUser).Error
	if err != nil {
		m.log.Error("seeding admin account failed", zap.Error(err))
		return err
	}
	m.log.Info(fmt.Sprintf("admin account ready, email: %s, password: %s, change it after first login", mUser.Email, defPwd))
	return nil
}
