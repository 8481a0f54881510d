package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ModelCost holds per-million-token prices for one (provider, model) pair.
type ModelCost struct {
	Provider                  string   `gorm:"primaryKey" json:"provider"`
	Model                     string   `gorm:"primaryKey" json:"model"`
	InputPricePerMillion      float64  `json:"inputPricePerMillion"`
	OutputPricePerMillion     float64  `json:"outputPricePerMillion"`
	CacheReadPricePerMillion  *float64 `json:"cacheReadPricePerMillion,omitempty"`
	CacheWritePricePerMillion *float64 `json:"cacheWritePricePerMillion,omitempty"`
}

// TableName implements gorm's Tabler.
func (ModelCost) TableName() string { return "model_costs" }

// GetModelCost looks up pricing for a (provider, model) pair.
func GetModelCost(ctx context.Context, d *DB, provider, model string) (*ModelCost, error) {
	var cost ModelCost
	err := d.Gorm.WithContext(ctx).
		First(&cost, "provider = ? AND model = ?", provider, model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model cost for %s/%s: %w", provider, model, err)
	}
	return &cost, nil
}
