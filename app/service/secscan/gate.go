package secscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

var ErrGate = errs.Class("security gate")

// Evaluation is the gate's verdict for one attempt. CanDeploy false on an
// otherwise-successful deployment downgrades it to success_with_warnings,
// never to failed: the code shipped, policy flags it for review.
type Evaluation struct {
	CanDeploy        bool                   `json:"can_deploy"`
	Counts           map[model.Severity]int `json:"counts"`
	ViolationMessage string                 `json:"violation_message"`
	PolicyApplied    string                 `json:"policy_applied"`
}

type Gate struct {
	db      *gorm.DB
	log     *zap.Logger
	scanner Scanner
}

func NewGate(db *gorm.DB, log *zap.Logger, scanner Scanner) *Gate {
	if scanner == nil {
		scanner = noScanner()
	}
	return &Gate{db: db, log: log, scanner: scanner}
}

// Evaluate resolves the applicable policy, runs its required scans and
// decides whether vulnerability counts permit full success. With no active
// policy the gate always permits: scanning is opt-in infrastructure, not a
// default gate.
func (g *Gate) Evaluate(ctx context.Context, deployment *model.Deployment, project *model.Project, binding *model.EnvironmentBinding) (*Evaluation, error) {
	eval := &Evaluation{
		CanDeploy:     true,
		Counts:        zeroCounts(),
		PolicyApplied: "none",
	}
	policy, err := g.resolvePolicy(project.ID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return eval, nil
	}
	if policy.ProjectId != nil {
		eval.PolicyApplied = fmt.Sprintf("project:%d", *policy.ProjectId)
	} else {
		eval.PolicyApplied = "global"
	}

	target := Target{
		ProjectPath:   binding.ProjectPath,
		RepositoryUrl: project.RepoUrl,
		Branch:        deployment.Branch,
		Timeout:       time.Duration(policy.ScanTimeout) * time.Second,
		MaxRetries:    policy.ScanRetries,
	}
	var findings []*model.VulnerabilityFinding
	for _, scanType := range policy.ScanTypes {
		results, err := g.scanner.Scan(ctx, scanType, target)
		if err != nil {
			// scanner outage is itself a critical finding, not an abort
			g.log.Error("scan failed",
				zap.Int64("deployment_id", deployment.ID),
				zap.String("scan_type", scanType), zap.Error(err))
			findings = append(findings, &model.VulnerabilityFinding{
				DeploymentId: deployment.ID,
				ScanType:     scanType,
				Severity:     model.SeverityCritical,
				Status:       model.FindingStatusOpen,
				Title:        fmt.Sprintf("%s scan failed", scanType),
				Description:  err.Error(),
			})
			continue
		}
		for _, r := range results {
			findings = append(findings, &model.VulnerabilityFinding{
				DeploymentId: deployment.ID,
				ScanType:     scanType,
				Severity:     normalizeSeverity(r.Severity),
				Status:       model.FindingStatusOpen,
				Title:        r.Title,
				Description:  r.Description,
				Location:     r.Location,
			})
		}
	}
	if len(findings) > 0 {
		if err = g.db.Create(&findings).Error; err != nil {
			return nil, ErrGate.Wrap(err)
		}
	}
	for _, f := range findings {
		eval.Counts[f.Severity]++
	}

	// leaked secrets block outright when the policy says so, whatever
	// the count thresholds allow
	if policy.BlockOnSecrets {
		for _, f := range findings {
			if f.ScanType == ScanTypeSecrets {
				eval.CanDeploy = false
				eval.ViolationMessage = fmt.Sprintf("policy violation: secrets finding %q blocks the deploy", f.Title)
				break
			}
		}
	}
	if eval.CanDeploy {
		for _, severity := range model.GatedSeverities {
			max := policy.MaxFor(severity)
			if eval.Counts[severity] > max {
				eval.CanDeploy = false
				eval.ViolationMessage = fmt.Sprintf(
					"policy violation: %d %s findings exceed the allowed %d",
					eval.Counts[severity], severity, max)
				break
			}
		}
	}
	return eval, nil
}

// resolvePolicy prefers an active project policy, falls back to the active
// global policy, and returns nil when neither exists.
func (g *Gate) resolvePolicy(projectId int64) (*model.SecurityPolicy, error) {
	var policy model.SecurityPolicy
	err := g.db.Where("project_id = ? and status = ?", projectId, field.StatusEnable).First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGate.Wrap(err)
	}
	err = g.db.Where("project_id is null and status = ?", field.StatusEnable).First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGate.Wrap(err)
	}
	return nil, nil
}

func zeroCounts() map[model.Severity]int {
	counts := make(map[model.Severity]int, len(model.GatedSeverities)+1)
	for _, s := range model.GatedSeverities {
		counts[s] = 0
	}
	counts[model.SeverityInfo] = 0
	return counts
}

func normalizeSeverity(s string) model.Severity {
	switch model.Severity(s) {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo:
		return model.Severity(s)
	}
	return model.SeverityInfo
}
