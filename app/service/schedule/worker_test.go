package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/service/deploy"
)

func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ScheduledDeployment{}, &model.Deployment{}))
	return db
}

// stubDeployer scripts the orchestrator's answers, one per call.
type stubDeployer struct {
	calls   []*deploy.DeployParams
	results []func() (*model.Deployment, error)
}

func (s *stubDeployer) Deploy(_ context.Context, params *deploy.DeployParams) (*model.Deployment, error) {
	s.calls = append(s.calls, params)
	if len(s.results) == 0 {
		return &model.Deployment{ID: int64(len(s.calls)), Status: model.DeploymentStatusSuccess}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next()
}

func testWorker(t *testing.T, db *gorm.DB, deployer Deployer) *Worker {
	conf := &Config{PollInterval: time.Hour, Workers: 2, MaxAttempts: 3}
	return NewWorker(conf, db, zap.NewNop(), deployer)
}

func seedSchedule(t *testing.T, db *gorm.DB, at time.Time, recurrence model.Recurrence) *model.ScheduledDeployment {
	row := &model.ScheduledDeployment{
		ProjectId:     1,
		EnvironmentId: 2,
		ScheduledAt:   at,
		Recurrence:    recurrence,
		Status:        model.ScheduleStatusPending,
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

func reload(t *testing.T, db *gorm.DB, id int64) *model.ScheduledDeployment {
	var row model.ScheduledDeployment
	require.NoError(t, db.First(&row, id).Error)
	return &row
}

func TestTickTriggersDueSchedules(t *testing.T) {
	db := testDB(t)
	stub := &stubDeployer{}
	w := testWorker(t, db, stub)

	due := seedSchedule(t, db, time.Now().Add(-time.Minute), model.RecurrenceNone)
	future := seedSchedule(t, db, time.Now().Add(time.Hour), model.RecurrenceNone)

	require.NoError(t, w.tick(context.Background()))

	require.Len(t, stub.calls, 1)
	assert.Equal(t, int64(1), stub.calls[0].ProjectId)
	assert.Equal(t, int64(2), stub.calls[0].EnvironmentId)
	assert.True(t, stub.calls[0].Capability.CanDeploy)
	assert.Nil(t, stub.calls[0].Actor, "scheduled attempts carry no actor")

	done := reload(t, db, due.ID)
	assert.Equal(t, model.ScheduleStatusCompleted, done.Status)
	assert.Equal(t, 1, done.Attempts)
	require.NotNil(t, done.DeploymentId)

	assert.Equal(t, model.ScheduleStatusPending, reload(t, db, future.ID).Status)
}

func TestExecuteSkipsCancelled(t *testing.T) {
	db := testDB(t)
	stub := &stubDeployer{}
	w := testWorker(t, db, stub)

	row := seedSchedule(t, db, time.Now().Add(-time.Minute), model.RecurrenceNone)
	require.NoError(t, db.Model(row).Update("status", model.ScheduleStatusCancelled).Error)

	// simulate a stale claim handed to execute after the user cancelled
	row.Status = model.ScheduleStatusQueued
	w.execute(context.Background(), row)

	assert.Empty(t, stub.calls)
	assert.Equal(t, model.ScheduleStatusCancelled, reload(t, db, row.ID).Status)
}

func TestRetriesUntilAttemptsExhausted(t *testing.T) {
	db := testDB(t)
	refuse := func() (*model.Deployment, error) {
		return nil, errs.New("deployment already in progress")
	}
	stub := &stubDeployer{results: []func() (*model.Deployment, error){refuse, refuse, refuse}}
	w := testWorker(t, db, stub)

	row := seedSchedule(t, db, time.Now().Add(-time.Minute), model.RecurrenceNone)

	for i := 1; i <= 2; i++ {
		require.NoError(t, w.tick(context.Background()))
		got := reload(t, db, row.ID)
		assert.Equal(t, model.ScheduleStatusPending, got.Status, "attempt %d should requeue", i)
		assert.Equal(t, i, got.Attempts)
		assert.Contains(t, got.LastError, "in progress")
	}

	require.NoError(t, w.tick(context.Background()))
	got := reload(t, db, row.ID)
	assert.Equal(t, model.ScheduleStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	require.NoError(t, w.tick(context.Background()))
	assert.Len(t, stub.calls, 3, "a failed schedule is never retried again")
}

func TestFailedDeploymentMarksScheduleFailed(t *testing.T) {
	db := testDB(t)
	stub := &stubDeployer{results: []func() (*model.Deployment, error){
		func() (*model.Deployment, error) {
			return &model.Deployment{ID: 7, Status: model.DeploymentStatusFailed}, nil
		},
	}}
	w := testWorker(t, db, stub)

	row := seedSchedule(t, db, time.Now().Add(-time.Minute), model.RecurrenceNone)
	require.NoError(t, w.tick(context.Background()))

	got := reload(t, db, row.ID)
	assert.Equal(t, model.ScheduleStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "status failed")
	require.NotNil(t, got.DeploymentId)
	assert.EqualValues(t, 7, *got.DeploymentId)
	assert.Len(t, stub.calls, 1, "a terminal failed attempt is not retried by the worker")
}

func TestRecurringScheduleAdvances(t *testing.T) {
	db := testDB(t)
	stub := &stubDeployer{}
	w := testWorker(t, db, stub)

	origin := time.Now().Add(-time.Minute)
	row := seedSchedule(t, db, origin, model.RecurrenceDaily)
	require.NoError(t, w.tick(context.Background()))

	assert.Equal(t, model.ScheduleStatusCompleted, reload(t, db, row.ID).Status)

	var successors []model.ScheduledDeployment
	require.NoError(t, db.Where("id <> ?", row.ID).Find(&successors).Error)
	require.Len(t, successors, 1)
	next := successors[0]
	assert.Equal(t, model.ScheduleStatusPending, next.Status)
	assert.Equal(t, model.RecurrenceDaily, next.Recurrence)
	assert.True(t, next.ScheduledAt.After(time.Now()))
	assert.Equal(t, origin.AddDate(0, 0, 1).Unix(), next.ScheduledAt.Unix(), "cadence anchors to the original time")
}

func TestCreateValidation(t *testing.T) {
	db := testDB(t)
	srv := NewService(db, zap.NewNop())

	_, err := srv.Create(&CreateParams{ProjectId: 1, EnvironmentId: 1, ScheduledAt: time.Now().Add(-time.Minute)})
	assert.True(t, errcode.ErrInvalidParams.Has(err))

	_, err = srv.Create(&CreateParams{ProjectId: 1, EnvironmentId: 1, ScheduledAt: time.Now().Add(time.Hour), Recurrence: "hourly"})
	assert.True(t, errcode.ErrInvalidParams.Has(err))

	row, err := srv.Create(&CreateParams{ProjectId: 1, EnvironmentId: 1, ScheduledAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.RecurrenceNone, row.Recurrence)
	assert.Equal(t, model.ScheduleStatusPending, row.Status)
}

func TestCancelBeforeExecution(t *testing.T) {
	db := testDB(t)
	srv := NewService(db, zap.NewNop())

	row := seedSchedule(t, db, time.Now().Add(time.Hour), model.RecurrenceNone)
	require.NoError(t, srv.Cancel(row.ID))
	assert.Equal(t, model.ScheduleStatusCancelled, reload(t, db, row.ID).Status)

	err := srv.Cancel(row.ID)
	assert.True(t, errcode.ErrPrecondition.Has(err))

	// queued rows are claimed but not yet running, cancellation still wins
	queued := seedSchedule(t, db, time.Now().Add(time.Hour), model.RecurrenceNone)
	require.NoError(t, db.Model(queued).Update("status", model.ScheduleStatusQueued).Error)
	require.NoError(t, srv.Cancel(queued.ID))
	assert.Equal(t, model.ScheduleStatusCancelled, reload(t, db, queued.ID).Status)

	running := seedSchedule(t, db, time.Now().Add(time.Hour), model.RecurrenceNone)
	require.NoError(t, db.Model(running).Update("status", model.ScheduleStatusRunning).Error)
	err = srv.Cancel(running.ID)
	assert.True(t, errcode.ErrPrecondition.Has(err))
	assert.Equal(t, model.ScheduleStatusRunning, reload(t, db, running.ID).Status)
}

func TestQueuedCancelObservedByWorker(t *testing.T) {
	db := testDB(t)
	srv := NewService(db, zap.NewNop())
	stub := &stubDeployer{}
	w := testWorker(t, db, stub)

	row := seedSchedule(t, db, time.Now().Add(-time.Minute), model.RecurrenceNone)
	require.NoError(t, db.Model(row).Update("status", model.ScheduleStatusQueued).Error)
	require.NoError(t, srv.Cancel(row.ID))

	row.Status = model.ScheduleStatusQueued
	w.execute(context.Background(), row)

	assert.Empty(t, stub.calls)
	assert.Equal(t, model.ScheduleStatusCancelled, reload(t, db, row.ID).Status)
}
