package database

import (
	"sort"

	"gorm.io/gorm"

	"steam-inventory/internal/models"
)

// DefinitionStore caches the item catalog so a restart, or a failed Web API
// fetch, can still serve definitions.
type DefinitionStore struct {
	db *gorm.DB
}

func NewDefinitionStore(db *gorm.DB) *DefinitionStore {
	return &DefinitionStore{db: db}
}

// SaveDefinitions replaces the cached catalog.
func (s *DefinitionStore) SaveDefinitions(digest string, defs map[int32]map[string]string) error {
	ids := make([]int32, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]models.ItemDefinition, 0, len(ids))
	for _, id := range ids {
		props := make([]models.ItemDefinitionProperty, 0, len(defs[id]))
		for name, value := range defs[id] {
			props = append(props, models.ItemDefinitionProperty{DefID: id, Name: name, Value: value})
		}
		rows = append(rows, models.ItemDefinition{DefID: id, Digest: digest, Properties: props})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ItemDefinitionProperty{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.ItemDefinition{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// LoadDefinitions returns the cached catalog and the digest it was saved
// with. An empty cache returns an empty map and "".
func (s *DefinitionStore) LoadDefinitions() (string, map[int32]map[string]string, error) {
	var rows []models.ItemDefinition
	if err := s.db.Preload("Properties").Order("def_id ASC").Find(&rows).Error; err != nil {
		return "", nil, err
	}

	digest := ""
	defs := make(map[int32]map[string]string, len(rows))
	for _, row := range rows {
		digest = row.Digest
		props := make(map[string]string, len(row.Properties))
		for _, p := range row.Properties {
			props[p.Name] = p.Value
		}
		defs[row.DefID] = props
	}
	return digest, defs, nil
}
