package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
)

// Template is a reusable production blueprint: a render config plus an
// optional script skeleton. Template CRUD is owned by an external service;
// the core only reads templates when a production is created from one.
type Template struct {
	Id             string           `json:"id" gorm:"primaryKey;size:64"`
	Name           string           `json:"name" gorm:"size:100;index"`
	Config         ProductionConfig `json:"config" gorm:"serializer:json;type:text"`
	ScriptSkeleton string           `json:"script_skeleton" gorm:"type:text"`
	CreatedAt      int64            `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt      int64            `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

func GetTemplateById(id string) (*Template, error) {
	var tpl Template
	err := DB.Where("id = ?", id).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get template %s", id)
	}
	return &tpl, nil
}
