package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-shipper/app/model"
)

func testTracker(t *testing.T) *Tracker {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PipelineStage{}))
	return NewTracker(db, zap.NewNop())
}

func statuses(t *testing.T, tr *Tracker, deploymentId int64) map[string]model.StageStatus {
	stages, err := tr.Stages(deploymentId)
	require.NoError(t, err)
	res := make(map[string]model.StageStatus, len(stages))
	for _, s := range stages {
		res[s.Name] = s.Status
	}
	return res
}

func TestCreateStages(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(1, DeployStages)
	require.NoError(t, err)
	require.Len(t, stages, len(DeployStages))
	for i, s := range stages {
		assert.Equal(t, model.StageStatusPending, s.Status)
		assert.Equal(t, i+1, s.Order)
	}
}

func TestCreateStagesRejectsDuplicates(t *testing.T) {
	tr := testTracker(t)
	_, err := tr.CreateStages(1, []StageDef{{Name: "a"}, {Name: "b"}, {Name: "a"}})
	assert.Error(t, err)
	_, err = tr.CreateStages(1, nil)
	assert.Error(t, err)
}

func TestStartOnlyFromPending(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(1, DeployStages)
	require.NoError(t, err)

	require.NoError(t, tr.Start(stages[0]))
	assert.Equal(t, model.StageStatusRunning, stages[0].Status)
	assert.NotNil(t, stages[0].StartedAt)

	// a second running stage on the same attempt is rejected
	err = tr.Start(stages[1])
	assert.True(t, ErrInvalidTransition.Has(err))

	// and starting a non-pending stage is rejected
	err = tr.Start(stages[0])
	assert.True(t, ErrInvalidTransition.Has(err))
}

func TestCompleteFailureCascadesSkip(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(7, DeployStages)
	require.NoError(t, err)

	require.NoError(t, tr.Start(stages[0]))
	require.NoError(t, tr.Complete(stages[0], true, "ok", ""))

	require.NoError(t, tr.Start(stages[1]))
	require.NoError(t, tr.Complete(stages[1], false, "", "endpoint refused"))

	got := statuses(t, tr, 7)
	assert.Equal(t, model.StageStatusSuccess, got["prepare"])
	assert.Equal(t, model.StageStatusFailed, got["dispatch"])
	assert.Equal(t, model.StageStatusSkipped, got["classify"])
	assert.Equal(t, model.StageStatusSkipped, got["security_scan"])
	assert.Equal(t, model.StageStatusSkipped, got["finalize"])

	next, err := tr.Next(7)
	require.NoError(t, err)
	assert.Nil(t, next, "pipeline is complete after the cascade")
}

func TestSkipRemainingIdempotent(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(3, DeployStages)
	require.NoError(t, err)
	require.NoError(t, tr.Start(stages[0]))
	require.NoError(t, tr.Complete(stages[0], false, "", "boom"))

	first := statuses(t, tr, 3)
	require.NoError(t, tr.SkipRemaining(3, stages[0].Order, stages[0].Name))
	second := statuses(t, tr, 3)
	assert.Equal(t, first, second)
}

func TestNextSelectsLowestOrderPending(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(5, DeployStages)
	require.NoError(t, err)

	next, err := tr.Next(5)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "prepare", next.Name)

	require.NoError(t, tr.Start(stages[0]))
	require.NoError(t, tr.Complete(stages[0], true, "", ""))

	next, err = tr.Next(5)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "dispatch", next.Name)
}

func TestCompleteSweep(t *testing.T) {
	tr := testTracker(t)
	_, err := tr.CreateStages(9, DeployStages)
	require.NoError(t, err)

	require.NoError(t, tr.CompleteSweep(9, "remote output"))
	for name, status := range statuses(t, tr, 9) {
		assert.Equal(t, model.StageStatusSuccess, status, "stage %s", name)
	}
	// the remote output lands on the first stage only
	first, err := tr.FindByName(9, "prepare")
	require.NoError(t, err)
	assert.Equal(t, "remote output", first.Output)
	second, err := tr.FindByName(9, "dispatch")
	require.NoError(t, err)
	assert.Equal(t, "", second.Output)
}

func TestCancelPending(t *testing.T) {
	tr := testTracker(t)
	stages, err := tr.CreateStages(11, RollbackStages)
	require.NoError(t, err)
	require.NoError(t, tr.Start(stages[0]))

	require.NoError(t, tr.CancelPending(11))
	for name, status := range statuses(t, tr, 11) {
		assert.Equal(t, model.StageStatusCancelled, status, "stage %s", name)
	}
}
