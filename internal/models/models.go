package models

import (
	"time"
)

// ItemDefinition is a cached entry of the item catalog.
type ItemDefinition struct {
	DefID      int32                    `json:"itemdefid" gorm:"primaryKey;autoIncrement:false"`
	Digest     string                   `json:"digest" gorm:"index"`
	Properties []ItemDefinitionProperty `json:"properties" gorm:"foreignKey:DefID;references:DefID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// ItemDefinitionProperty is one string property of a catalog entry.
type ItemDefinitionProperty struct {
	ID    uint   `json:"-" gorm:"primaryKey"`
	DefID int32  `json:"-" gorm:"not null;uniqueIndex:idx_def_property"`
	Name  string `json:"name" gorm:"not null;uniqueIndex:idx_def_property"`
	Value string `json:"value"`
}
