package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"posbridge/models"
)

// CatalogRepo reads catalog mappings from the catalog_mappings table.
type CatalogRepo struct {
	client *Client
}

func NewCatalogRepo(client *Client) *CatalogRepo {
	return &CatalogRepo{client: client}
}

// Load returns every mapping row that carries a POS product id.
func (r *CatalogRepo) Load(ctx context.Context) ([]models.CatalogMapping, error) {
	var rows []models.CatalogMapping
	err := r.client.DB().WithContext(ctx).
		Where("iiko_product_id <> ''").
		Order("city, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog mappings: %w", err)
	}
	return rows, nil
}

// Migrate creates or updates the catalog_mappings table.
func (r *CatalogRepo) Migrate(ctx context.Context) error {
	if err := r.client.DB().WithContext(ctx).AutoMigrate(&models.CatalogMapping{}); err != nil {
		return fmt.Errorf("failed to migrate catalog mappings: %w", err)
	}
	return nil
}

// Replace swaps the whole table contents for rows in one transaction.
func (r *CatalogRepo) Replace(ctx context.Context, rows []models.CatalogMapping) error {
	return r.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.CatalogMapping{}).Error; err != nil {
			return fmt.Errorf("failed to clear catalog mappings: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		fresh := make([]models.CatalogMapping, len(rows))
		for i, row := range rows {
			row.ID = 0
			fresh[i] = row
		}
		if err := tx.CreateInBatches(fresh, 500).Error; err != nil {
			return fmt.Errorf("failed to insert catalog mappings: %w", err)
		}
		return nil
	})
}
