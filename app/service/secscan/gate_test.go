package secscan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.SecurityPolicy{}, &model.VulnerabilityFinding{}))
	return db
}

var (
	testProject    = &model.Project{ID: 1, Name: "shop", RepoUrl: "https://git.example.com/shop.git"}
	testDeployment = &model.Deployment{ID: 10, ProjectId: 1, Branch: "main"}
	testBinding    = &model.EnvironmentBinding{ProjectId: 1, ProjectPath: "/srv/shop"}
)

func TestEvaluateNoPolicyAlwaysPermits(t *testing.T) {
	db := testDB(t)
	// findings already persisted for the attempt must not matter
	require.NoError(t, db.Create(&model.VulnerabilityFinding{
		DeploymentId: testDeployment.ID,
		Severity:     model.SeverityCritical,
		Status:       model.FindingStatusOpen,
		Title:        "old finding",
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(context.Context, string, Target) ([]Finding, error) {
		return []Finding{{Severity: "critical", Title: "should never run"}}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.True(t, eval.CanDeploy)
	assert.Equal(t, "none", eval.PolicyApplied)
	for severity, n := range eval.Counts {
		assert.Zero(t, n, "severity %s", severity)
	}
}

func TestEvaluateProjectPolicyPreferredOverGlobal(t *testing.T) {
	db := testDB(t)
	projectId := int64(1)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, MaxCritical: 5,
	}).Error) // global
	require.NoError(t, db.Create(&model.SecurityPolicy{
		ProjectId: &projectId, Status: field.StatusEnable, MaxCritical: 0,
		ScanTypes: field.Slices[string]{ScanTypeSast},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(_ context.Context, _ string, _ Target) ([]Finding, error) {
		return []Finding{{Severity: "critical", Title: "sqli", Location: "cart.php:10"}}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.Equal(t, "project:1", eval.PolicyApplied)
	assert.False(t, eval.CanDeploy, "project policy allows 0 critical")
	assert.Equal(t, 1, eval.Counts[model.SeverityCritical])
	assert.Contains(t, eval.ViolationMessage, "critical")
}

func TestEvaluateScanFailureBecomesCriticalFinding(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, MaxCritical: 0,
		ScanTypes: field.Slices[string]{ScanTypeDependency, ScanTypeSecrets},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(_ context.Context, scanType string, _ Target) ([]Finding, error) {
		if scanType == ScanTypeDependency {
			return nil, errors.New("scanner unreachable")
		}
		return nil, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.False(t, eval.CanDeploy)
	assert.Equal(t, 1, eval.Counts[model.SeverityCritical])

	var finding model.VulnerabilityFinding
	require.NoError(t, db.Where("deployment_id = ? and scan_type = ?",
		testDeployment.ID, ScanTypeDependency).First(&finding).Error)
	assert.Equal(t, model.SeverityCritical, finding.Severity)
	assert.Contains(t, finding.Title, "scan failed")
}

func TestEvaluateWithinThresholds(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, MaxCritical: 0, MaxHigh: 2, MaxMedium: 10, MaxLow: 10,
		ScanTypes: field.Slices[string]{ScanTypeSast},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(context.Context, string, Target) ([]Finding, error) {
		return []Finding{
			{Severity: "high", Title: "xss"},
			{Severity: "high", Title: "csrf"},
			{Severity: "low", Title: "verbose errors"},
			{Severity: "info", Title: "headers"},
		}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.True(t, eval.CanDeploy)
	assert.Empty(t, eval.ViolationMessage)
	assert.Equal(t, "global", eval.PolicyApplied)
	assert.Equal(t, 2, eval.Counts[model.SeverityHigh])
	assert.Equal(t, 1, eval.Counts[model.SeverityInfo], "info recorded but never gates")
}

func TestEvaluateBlockOnSecretsOverridesThresholds(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, BlockOnSecrets: true,
		MaxCritical: 10, MaxHigh: 10, MaxMedium: 10, MaxLow: 10,
		ScanTypes: field.Slices[string]{ScanTypeSecrets},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(context.Context, string, Target) ([]Finding, error) {
		return []Finding{{Severity: "high", Title: "AWS key committed", Location: ".env:3"}}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.False(t, eval.CanDeploy, "a leaked secret blocks even within count thresholds")
	assert.Contains(t, eval.ViolationMessage, "AWS key committed")
}

func TestEvaluateBlockOnSecretsIgnoresOtherScanTypes(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, BlockOnSecrets: true,
		MaxCritical: 10, MaxHigh: 10, MaxMedium: 10, MaxLow: 10,
		ScanTypes: field.Slices[string]{ScanTypeSast},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(context.Context, string, Target) ([]Finding, error) {
		return []Finding{{Severity: "high", Title: "xss"}}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.True(t, eval.CanDeploy)
}

func TestEvaluateUnconfiguredScannerFailsRequiredScans(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, MaxCritical: 0,
		ScanTypes: field.Slices[string]{ScanTypeSast, ScanTypeSecrets},
	}).Error)

	gate := NewGate(db, zap.NewNop(), nil)
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.False(t, eval.CanDeploy, "required scans without a backend must not pass")
	assert.Equal(t, 2, eval.Counts[model.SeverityCritical])

	var findings []model.VulnerabilityFinding
	require.NoError(t, db.Where("deployment_id = ?", testDeployment.ID).Find(&findings).Error)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, model.SeverityCritical, f.Severity)
		assert.Contains(t, f.Description, "no scanner backend configured")
	}
}

func TestViolationNamesFirstSeverityCriticalToLow(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&model.SecurityPolicy{
		Status: field.StatusEnable, MaxCritical: 0, MaxHigh: 0,
		ScanTypes: field.Slices[string]{ScanTypeSast},
	}).Error)

	gate := NewGate(db, zap.NewNop(), ScannerFunc(func(context.Context, string, Target) ([]Finding, error) {
		return []Finding{
			{Severity: "high", Title: "xss"},
			{Severity: "critical", Title: "rce"},
		}, nil
	}))
	eval, err := gate.Evaluate(context.Background(), testDeployment, testProject, testBinding)
	require.NoError(t, err)
	assert.False(t, eval.CanDeploy)
	assert.Contains(t, eval.ViolationMessage, "1 critical")
	assert.NotContains(t, eval.ViolationMessage, "high")
}
