package deploy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-shipper/app/internal/constants"
	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
	"go-shipper/app/service/pipeline"
	"go-shipper/app/service/secscan"
)

func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Project{}, &model.Environment{}, &model.EnvironmentBinding{},
		&model.Deployment{}, &model.PipelineStage{}, &model.Record{}, &model.Notification{},
		&model.SecurityPolicy{}, &model.VulnerabilityFinding{},
	))
	return db
}

func testService(t *testing.T, db *gorm.DB, scanner secscan.Scanner) *Service {
	log := zap.NewNop()
	clientConf := &Config{Timeout: 5 * time.Second, MaxBodySize: 1 << 20, RollbackToken: "shared-secret"}
	return NewService(db, log,
		pipeline.NewTracker(db, log),
		secscan.NewGate(db, log, scanner),
		NewClient(clientConf, log),
		NewNotifier(db, log),
		nil)
}

// seedPair creates an enabled project, environment and binding pointing at
// the given endpoint urls.
func seedPair(t *testing.T, db *gorm.DB, deployUrl, rollbackUrl string) (*model.Project, *model.Environment) {
	project := &model.Project{Name: "api", Branch: "main", AccessToken: "project-token", Status: field.StatusEnable}
	require.NoError(t, db.Create(project).Error)
	env := &model.Environment{Name: "Production", Slug: "prod", Status: field.StatusEnable}
	require.NoError(t, db.Create(env).Error)
	binding := &model.EnvironmentBinding{
		ProjectId:     project.ID,
		EnvironmentId: env.ID,
		DeployUrl:     deployUrl,
		RollbackUrl:   rollbackUrl,
		Branch:        "main",
		Status:        field.StatusEnable,
	}
	require.NoError(t, db.Create(binding).Error)
	return project, env
}

func seedActor(t *testing.T, db *gorm.DB, role constants.Role) *model.User {
	user := &model.User{Username: "op", Email: string(role) + "@example.com", Password: []byte("x"), Role: string(role), Status: field.StatusEnable}
	require.NoError(t, db.Create(user).Error)
	return user
}

func deployerParams(project *model.Project, env *model.Environment, actor *model.User) *DeployParams {
	return &DeployParams{
		ProjectId:     project.ID,
		EnvironmentId: env.ID,
		Actor:         actor,
		Capability:    constants.CapabilityFor(constants.RoleDeveloper),
	}
}

func TestDeploySuccess(t *testing.T) {
	var gotAuth, gotQuery string
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("branch")
		_, _ = w.Write([]byte("Updating abc1234..def5678\nDEPLOYMENT_STATUS=success\nRun ID: 20260901_101500\n"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	deployment, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStatusSuccess, deployment.Status)
	assert.Equal(t, "20260901_101500", deployment.RunId)
	assert.NotEmpty(t, deployment.Reference)
	assert.Equal(t, "Bearer project-token", gotAuth)
	assert.Equal(t, "main", gotQuery)

	detail, err := srv.Detail(deployment.ID)
	require.NoError(t, err)
	require.Len(t, detail.Stages, len(pipeline.DeployStages))
	for _, stage := range detail.Stages {
		assert.Equal(t, model.StageStatusSuccess, stage.Status, stage.Name)
	}
	assert.NotNil(t, detail.CompletedAt)

	var notifications []model.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.NotEmpty(t, notifications)
	assert.Equal(t, NotifySuccess, notifications[0].Type)
	assert.Equal(t, string(model.KindDeploy), notifications[0].Meta["kind"])
	assert.Equal(t, string(model.DeploymentStatusSuccess), notifications[0].Meta["status"])
	assert.Equal(t, "def5678", notifications[0].Meta["commit"])
}

func TestDeployRemoteFailureCascades(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("FATAL ERROR: disk full"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	deployment, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStatusFailed, deployment.Status)

	var payload map[string]any
	detail, err := srv.Detail(deployment.ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(detail.Output), &payload))
	assert.EqualValues(t, 500, payload["status_code"])
	assert.Contains(t, payload["body"], "FATAL ERROR")

	byName := map[string]model.StageStatus{}
	for _, stage := range detail.Stages {
		byName[stage.Name] = stage.Status
	}
	assert.Equal(t, model.StageStatusSuccess, byName["dispatch"])
	assert.Equal(t, model.StageStatusFailed, byName["classify"])
	assert.Equal(t, model.StageStatusSkipped, byName["security_scan"])
	assert.Equal(t, model.StageStatusSkipped, byName["finalize"])

	var notifications []model.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.NotEmpty(t, notifications)
	assert.Equal(t, NotifyFailure, notifications[0].Type)
}

func TestDeployUnreachableEndpoint(t *testing.T) {
	db := testDB(t)
	project, env := seedPair(t, db, "http://127.0.0.1:1/deploy", "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	deployment, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStatusFailed, deployment.Status)
	assert.NotEmpty(t, deployment.LastError)
}

func TestDeployPolicyGateDowngrades(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("DEPLOYMENT_STATUS=success\n"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status:    field.StatusEnable,
		ScanTypes: field.Slices[string]{secscan.ScanTypeDependency},
	}).Error)

	scanner := secscan.ScannerFunc(func(context.Context, string, secscan.Target) ([]secscan.Finding, error) {
		return []secscan.Finding{{Severity: "critical", Title: "CVE-2026-0001"}}, nil
	})
	srv := testService(t, db, scanner)

	deployment, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStatusWarnings, deployment.Status)
	assert.True(t, deployment.Status.Shipped())

	var findings []model.VulnerabilityFinding
	require.NoError(t, db.Where("deployment_id = ?", deployment.ID).Find(&findings).Error)
	require.Len(t, findings, 1)
	assert.Equal(t, model.SeverityCritical, findings[0].Severity)
}

func TestDeployFailFastWithoutBinding(t *testing.T) {
	db := testDB(t)
	project := &model.Project{Name: "api", Status: field.StatusEnable}
	require.NoError(t, db.Create(project).Error)
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	_, err := srv.Deploy(context.Background(), &DeployParams{
		ProjectId:     project.ID,
		EnvironmentId: 42,
		Actor:         actor,
		Capability:    constants.CapabilityFor(constants.RoleDeveloper),
	})
	assert.True(t, errcode.ErrConfiguration.Has(err))

	var count int64
	require.NoError(t, db.Model(&model.Deployment{}).Count(&count).Error)
	assert.Zero(t, count, "a rejected deploy must leave no attempt row")
}

func TestDeployViewerForbidden(t *testing.T) {
	db := testDB(t)
	project, env := seedPair(t, db, "http://unused", "")
	srv := testService(t, db, nil)

	_, err := srv.Deploy(context.Background(), &DeployParams{
		ProjectId:     project.ID,
		EnvironmentId: env.ID,
		Capability:    constants.CapabilityFor(constants.RoleViewer),
	})
	assert.ErrorIs(t, err, errcode.ErrForbidden)
}

func TestDeployRejectsConcurrentPair(t *testing.T) {
	db := testDB(t)
	project, env := seedPair(t, db, "http://unused", "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	require.NoError(t, srv.reg.acquire(project.ID, env.ID))
	defer srv.reg.release(project.ID, env.ID)

	_, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	assert.True(t, ErrBusy.Has(err))
	assert.True(t, srv.Busy(project.ID, env.ID))
}

func TestRollbackSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotPayload)
			_, _ = w.Write([]byte(`{"rollback_target_commit":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}` + "\nDEPLOYMENT_STATUS=success\n"))
			return
		}
		_, _ = w.Write([]byte("DEPLOYMENT_STATUS=success\n"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, remote.URL)
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	target := &model.Deployment{
		Reference: "ref-target", ProjectId: project.ID, EnvironmentId: env.ID,
		Kind: model.KindDeploy, Status: model.DeploymentStatusSuccess,
		Branch: "main", CommitHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	require.NoError(t, db.Create(target).Error)

	deployment, err := srv.Rollback(context.Background(), &RollbackParams{
		ProjectId:  project.ID,
		TargetId:   target.ID,
		Reason:     "bad release",
		Actor:      actor,
		Capability: constants.CapabilityFor(constants.RoleDeveloper),
	})
	require.NoError(t, err)
	assert.Equal(t, model.KindRollback, deployment.Kind)
	assert.Equal(t, model.DeploymentStatusSuccess, deployment.Status)
	assert.Equal(t, target.CommitHash, deployment.CommitHash)
	assert.Equal(t, "Bearer shared-secret", gotAuth)
	assert.Equal(t, true, gotPayload["rollback"])
	assert.Equal(t, target.CommitHash, gotPayload["rollback_target_commit"])
	assert.Equal(t, "bad release", gotPayload["rollback_reason"])
}

func TestRollbackRejectedBeforeRecord(t *testing.T) {
	db := testDB(t)
	project, env := seedPair(t, db, "http://unused", "http://unused")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	failed := &model.Deployment{
		Reference: "ref-failed", ProjectId: project.ID, EnvironmentId: env.ID,
		Kind: model.KindDeploy, Status: model.DeploymentStatusFailed, Branch: "main",
	}
	require.NoError(t, db.Create(failed).Error)

	_, err := srv.Rollback(context.Background(), &RollbackParams{
		ProjectId:  project.ID,
		TargetId:   failed.ID,
		Actor:      actor,
		Capability: constants.CapabilityFor(constants.RoleDeveloper),
	})
	assert.True(t, errcode.ErrPrecondition.Has(err))

	var count int64
	require.NoError(t, db.Model(&model.Deployment{}).Where("kind = ?", model.KindRollback).Count(&count).Error)
	assert.Zero(t, count, "a rejected rollback must leave no attempt row")
}

func TestRollbackRequiresEndpoint(t *testing.T) {
	db := testDB(t)
	project, env := seedPair(t, db, "http://unused", "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	target := &model.Deployment{
		Reference: "ref-ok", ProjectId: project.ID, EnvironmentId: env.ID,
		Kind: model.KindDeploy, Status: model.DeploymentStatusSuccess,
		Branch: "main", CommitHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	require.NoError(t, db.Create(target).Error)

	_, err := srv.Rollback(context.Background(), &RollbackParams{
		ProjectId:  project.ID,
		TargetId:   target.ID,
		Actor:      actor,
		Capability: constants.CapabilityFor(constants.RoleDeveloper),
	})
	assert.True(t, errcode.ErrConfiguration.Has(err))
}

func TestRollbackFailureMessages(t *testing.T) {
	assert.Contains(t, rollbackFailureMessage(http.StatusNotFound), "not found")
	assert.Contains(t, rollbackFailureMessage(http.StatusUnauthorized), "token")
	assert.Contains(t, rollbackFailureMessage(http.StatusBadRequest), "rejected")
	assert.Contains(t, rollbackFailureMessage(http.StatusBadGateway), "502")
}

func TestCancelPendingOnly(t *testing.T) {
	db := testDB(t)
	srv := testService(t, db, nil)

	pending := &model.Deployment{Reference: "ref-p", ProjectId: 1, EnvironmentId: 1, Kind: model.KindDeploy, Status: model.DeploymentStatusPending}
	require.NoError(t, db.Create(pending).Error)
	require.NoError(t, srv.Cancel(pending.ID))

	var reloaded model.Deployment
	require.NoError(t, db.First(&reloaded, pending.ID).Error)
	assert.Equal(t, model.DeploymentStatusCancelled, reloaded.Status)

	running := &model.Deployment{Reference: "ref-r", ProjectId: 1, EnvironmentId: 2, Kind: model.KindDeploy, Status: model.DeploymentStatusProcessing}
	require.NoError(t, db.Create(running).Error)
	err := srv.Cancel(running.ID)
	assert.True(t, errcode.ErrPrecondition.Has(err))
}

func TestCancelledAttemptStaysCancelled(t *testing.T) {
	hits := 0
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("DEPLOYMENT_STATUS=success\n"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	deployment, proj, binding, err := srv.begin(deployerParams(project, env, actor))
	require.NoError(t, err)
	defer srv.reg.release(project.ID, env.ID)
	require.Equal(t, model.DeploymentStatusPending, deployment.Status)

	// cancel lands between creation and the run goroutine picking it up
	require.NoError(t, srv.Cancel(deployment.ID))

	srv.runDeploy(context.Background(), deployment, proj, binding)

	var reloaded model.Deployment
	require.NoError(t, db.First(&reloaded, deployment.ID).Error)
	assert.Equal(t, model.DeploymentStatusCancelled, reloaded.Status)
	assert.Zero(t, hits, "the remote endpoint must not be invoked for a cancelled attempt")

	var stages []model.PipelineStage
	require.NoError(t, db.Where("deployment_id = ?", deployment.ID).Find(&stages).Error)
	require.NotEmpty(t, stages)
	for _, stage := range stages {
		assert.Equal(t, model.StageStatusCancelled, stage.Status, stage.Name)
	}
}

func TestRecordsReplayAfterId(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("DEPLOYMENT_STATUS=success\n"))
	}))
	defer remote.Close()

	db := testDB(t)
	project, env := seedPair(t, db, remote.URL, "")
	actor := seedActor(t, db, constants.RoleDeveloper)
	srv := testService(t, db, nil)

	deployment, err := srv.Deploy(context.Background(), deployerParams(project, env, actor))
	require.NoError(t, err)

	all, err := srv.Records(deployment.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	tail, err := srv.Records(deployment.ID, all[len(all)/2].ID)
	require.NoError(t, err)
	assert.Less(t, len(tail), len(all))
	for _, row := range tail {
		assert.Greater(t, row.ID, all[len(all)/2].ID)
	}
}
