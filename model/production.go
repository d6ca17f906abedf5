package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
)

// Production statuses. Transitions form a DAG:
// CREATED → RUNNING ↔ PAUSED, any → FAILED/CANCELLED, RUNNING → COMPLETED.
const (
	ProductionStatusCreated   = "CREATED"
	ProductionStatusRunning   = "RUNNING"
	ProductionStatusPaused    = "PAUSED"
	ProductionStatusCompleted = "COMPLETED"
	ProductionStatusFailed    = "FAILED"
	ProductionStatusCancelled = "CANCELLED"
)

// ProductionConfig is the render configuration, immutable after creation.
type ProductionConfig struct {
	Aspect        string  `json:"aspect"`
	Quality       string  `json:"quality"`
	Format        string  `json:"format"`
	TargetMinutes float64 `json:"target_minutes"`
}

var (
	validAspects   = map[string]bool{"9:16": true, "16:9": true, "1:1": true}
	validQualities = map[string]bool{"720p": true, "1080p": true, "4K": true}
	validFormats   = map[string]bool{"mp4": true, "mov": true}
)

// Validate checks the enumerated fields and the target duration bounds.
func (c *ProductionConfig) Validate() error {
	if !validAspects[c.Aspect] {
		return errors.Wrapf(common.ErrInvalidInput, "invalid aspect %q", c.Aspect)
	}
	if !validQualities[c.Quality] {
		return errors.Wrapf(common.ErrInvalidInput, "invalid quality %q", c.Quality)
	}
	if !validFormats[c.Format] {
		return errors.Wrapf(common.ErrInvalidInput, "invalid format %q", c.Format)
	}
	if c.TargetMinutes < 0.5 || c.TargetMinutes > 10 {
		return errors.Wrapf(common.ErrInvalidInput, "target_minutes %.3f out of range [0.5, 10]", c.TargetMinutes)
	}
	return nil
}

// ProductionError records the error that terminated a production.
type ProductionError struct {
	Stage      StageId `json:"stage"`
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	OccurredAt int64   `json:"occurred_at"`
}

// Production is the central entity: one short-video project tracked through
// the six-stage pipeline. Large stage outputs are stored as artifact refs
// inside StageOutputs; small structured outputs are inlined. The version
// counter implements optimistic concurrency: every persistent change bumps it
// and UpdateProduction compare-and-swaps on it.
type Production struct {
	Id            string           `json:"id" gorm:"primaryKey;size:64"`
	TenantId      int              `json:"tenant_id" gorm:"index"`
	Script        string           `json:"script" gorm:"type:text"`
	CharacterRefs []string         `json:"character_refs" gorm:"serializer:json;type:text"`
	NarrationRef  string           `json:"narration_ref,omitempty"`
	Config        ProductionConfig `json:"config" gorm:"serializer:json;type:text"`

	Status       string       `json:"status" gorm:"size:16;index;default:'CREATED'"`
	CurrentStage StageId      `json:"current_stage" gorm:"size:32"`
	StageOutputs StageOutputs `json:"stage_outputs" gorm:"serializer:json;type:text"`

	// Pause and cancel are cooperative flags observed by the engine between
	// stages; cancel additionally aborts the in-flight worker.
	PauseRequested  bool `json:"pause_requested"`
	CancelRequested bool `json:"cancel_requested"`

	// RenderCost is the billed cost of the render stage, recorded for audit
	// when the quota debit commits.
	RenderCost    float64 `json:"render_cost"`
	FinalVideoRef string  `json:"final_video_ref,omitempty"`

	Version   int64            `json:"version" gorm:"default:0"`
	LastError *ProductionError `json:"last_error,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt int64            `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64            `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// CreateProduction inserts a new production. Fails with Conflict when the id
// already exists.
func CreateProduction(p *Production) error {
	if p.Id == "" {
		return errors.Wrap(common.ErrInvalidInput, "production id is empty")
	}
	var count int64
	DB.Model(&Production{}).Where("id = ?", p.Id).Count(&count)
	if count > 0 {
		return errors.Wrapf(common.ErrConflict, "production %s already exists", p.Id)
	}
	if p.Status == "" {
		p.Status = ProductionStatusCreated
	}
	if p.CurrentStage == "" {
		p.CurrentStage = p.StageOutputs.FirstIncomplete()
	}
	if err := DB.Create(p).Error; err != nil {
		return errors.Wrapf(err, "create production %s", p.Id)
	}
	return nil
}

func GetProductionById(id string) (*Production, error) {
	if id == "" {
		return nil, errors.Wrap(common.ErrInvalidInput, "production id is empty")
	}
	var p Production
	err := DB.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "production %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get production %s", id)
	}
	return &p, nil
}

// ListProductions returns one page of the tenant's productions, newest first,
// plus the unpaged total. An empty status matches all statuses.
func ListProductions(tenantId int, status string, startIdx int, num int) ([]*Production, int64, error) {
	query := DB.Model(&Production{}).Where("tenant_id = ?", tenantId)
	if status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count productions")
	}

	var items []*Production
	err := query.Order("created_at desc").Limit(num).Offset(startIdx).Find(&items).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list productions")
	}
	return items, total, nil
}

// UpdateProduction persists the record with a compare-and-swap on version.
// On success the in-memory version is the stored, incremented one. On a lost
// race it returns VersionConflict and leaves the record untouched.
func UpdateProduction(p *Production) error {
	expected := p.Version
	p.Version = expected + 1

	var affected int64
	err := runWithSQLiteBusyRetry(nil, func() error {
		result := DB.Model(&Production{}).
			Where("id = ? AND version = ?", p.Id, expected).
			Select("*").Omit("id", "created_at").
			Updates(p)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		p.Version = expected
		return errors.Wrapf(err, "update production %s", p.Id)
	}
	if affected == 0 {
		p.Version = expected
		return errors.Wrapf(common.ErrVersionConflict, "production %s version %d", p.Id, expected)
	}
	return nil
}

// DeleteProduction removes the production and cascades to its collaborator
// grants, invitations and version snapshots.
func DeleteProduction(id string) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		return deleteProductionTx(tx, id)
	})
}

func deleteProductionTx(tx *gorm.DB, id string) error {
	result := tx.Where("id = ?", id).Delete(&Production{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete production %s", id)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(common.ErrNotFound, "production %s", id)
	}
	if err := tx.Where("production_id = ?", id).Delete(&CollaboratorGrant{}).Error; err != nil {
		return errors.Wrapf(err, "delete grants of production %s", id)
	}
	if err := tx.Where("production_id = ?", id).Delete(&Invitation{}).Error; err != nil {
		return errors.Wrapf(err, "delete invitations of production %s", id)
	}
	if err := tx.Where("production_id = ?", id).Delete(&ProductionSnapshot{}).Error; err != nil {
		return errors.Wrapf(err, "delete snapshots of production %s", id)
	}
	return nil
}
