package deploy

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

const (
	NotifySuccess = "success"
	NotifyFailure = "failure"
)

// Notifier fans a terminal attempt out to its audience. Failures here must
// never change the outcome of the attempt itself.
type Notifier interface {
	Notify(deployment *model.Deployment, outcome, message string)
}

type dbNotifier struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewNotifier(db *gorm.DB, log *zap.Logger) Notifier {
	return &dbNotifier{db: db, log: log.Named("notify")}
}

// Notify writes one in-app notification row per recipient: the triggering
// user plus every enabled admin and developer, de-duplicated.
func (n *dbNotifier) Notify(deployment *model.Deployment, outcome, message string) {
	recipients := make(map[int64]struct{})
	if deployment.UserId != nil {
		recipients[*deployment.UserId] = struct{}{}
	}
	var users []model.User
	err := n.db.Where("role IN ? AND status = ?",
		[]string{string(constants.RoleAdmin), string(constants.RoleDeveloper)},
		field.StatusEnable).Find(&users).Error
	if err != nil {
		n.log.Error("listing notification recipients", zap.Error(err))
	}
	for _, u := range users {
		recipients[u.ID] = struct{}{}
	}
	if message == "" {
		message = fmt.Sprintf("%s #%d finished with status %s", deployment.Kind, deployment.ID, deployment.Status)
	}
	meta := field.Map[string]{
		"kind":   string(deployment.Kind),
		"status": string(deployment.Status),
		"branch": deployment.Branch,
	}
	if deployment.CommitHash != "" {
		meta["commit"] = deployment.CommitHash
	}
	rows := make([]model.Notification, 0, len(recipients))
	for userId := range recipients {
		rows = append(rows, model.Notification{
			UserId:       userId,
			DeploymentId: deployment.ID,
			Type:         outcome,
			Message:      message,
			Meta:         meta,
		})
	}
	if len(rows) == 0 {
		return
	}
	if err := n.db.Create(&rows).Error; err != nil {
		n.log.Error("persisting notifications", zap.Error(err), zap.Int64("deployment_id", deployment.ID))
		return
	}
	n.log.Info("notified recipients",
		zap.Int64("deployment_id", deployment.ID),
		zap.String("outcome", outcome),
		zap.Int("recipients", len(rows)))
}
