package secscan

import (
	"errors"

	"golang.org/x/exp/slices"
	"gorm.io/gorm"

	"go-shipper/app/internal/errcode"
	"go-shipper/app/model"
	"go-shipper/app/model/field"
)

var validScanTypes = []string{ScanTypeSast, ScanTypeDependency, ScanTypeSecrets, ScanTypeInfrastructure, ScanTypeContainer}

type PolicyReq struct {
	ID             int64                `json:"id"`
	ProjectId      *int64               `json:"project_id"`
	Status         field.Status         `json:"status"`
	MaxCritical    int                  `json:"max_critical" binding:"min=0"`
	MaxHigh        int                  `json:"max_high" binding:"min=0"`
	MaxMedium      int                  `json:"max_medium" binding:"min=0"`
	MaxLow         int                  `json:"max_low" binding:"min=0"`
	ScanTypes      field.Slices[string] `json:"scan_types"`
	BlockOnSecrets bool                 `json:"block_on_secrets"`
	ScanTimeout    int                  `json:"scan_timeout" binding:"min=0"`
	ScanRetries    int                  `json:"scan_retries" binding:"min=0,max=10"`
}

// SavePolicy creates or updates a policy. At most one policy exists per
// project and one global default.
func (g *Gate) SavePolicy(params *PolicyReq) (*model.SecurityPolicy, error) {
	for _, st := range params.ScanTypes {
		if !slices.Contains(validScanTypes, st) {
			return nil, errcode.ErrInvalidParams.New("unknown scan type %q", st)
		}
	}
	var existing model.SecurityPolicy
	query := g.db.Model(&model.SecurityPolicy{})
	if params.ProjectId == nil {
		query = query.Where("project_id IS NULL")
	} else {
		query = query.Where("project_id = ?", *params.ProjectId)
	}
	if params.ID > 0 {
		query = query.Where("id <> ?", params.ID)
	}
	err := query.First(&existing).Error
	if err == nil {
		return nil, errcode.ErrPrecondition.New("a policy already exists for this scope (id %d)", existing.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGate.Wrap(err)
	}

	policy := &model.SecurityPolicy{
		ID:             params.ID,
		ProjectId:      params.ProjectId,
		Status:         params.Status,
		MaxCritical:    params.MaxCritical,
		MaxHigh:        params.MaxHigh,
		MaxMedium:      params.MaxMedium,
		MaxLow:         params.MaxLow,
		ScanTypes:      params.ScanTypes,
		BlockOnSecrets: params.BlockOnSecrets,
		ScanTimeout:    params.ScanTimeout,
		ScanRetries:    params.ScanRetries,
	}
	if policy.ScanTimeout == 0 {
		policy.ScanTimeout = 300
	}
	if policy.ID > 0 {
		err = g.db.Save(policy).Error
	} else {
		err = g.db.Create(policy).Error
	}
	if err != nil {
		return nil, ErrGate.Wrap(err)
	}
	return policy, nil
}

func (g *Gate) ListPolicies() ([]*model.SecurityPolicy, error) {
	var rows []*model.SecurityPolicy
	if err := g.db.Order("project_id IS NULL DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, ErrGate.Wrap(err)
	}
	return rows, nil
}

func (g *Gate) DeletePolicy(policyId int64) error {
	result := g.db.Delete(&model.SecurityPolicy{}, policyId)
	if result.Error != nil {
		return ErrGate.Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return errcode.ErrPrecondition.New("policy %d not found", policyId)
	}
	return nil
}
