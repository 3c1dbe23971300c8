package models

// CatalogMapping binds a storefront product identity to a POS product
type CatalogMapping struct {
	ID                int64  `gorm:"primaryKey" json:"-"`
	City              string `gorm:"column:city;index" json:"city"`
	ExternalProductID string `gorm:"column:tilda_product_id" json:"tildaProductId"`
	Name              string `gorm:"column:tilda_product_name" json:"tildaName"`
	Modifier          string `gorm:"column:tilda_modifier" json:"tildaModifier"`
	POSProductID      string `gorm:"column:iiko_product_id" json:"iikoProductId"`
	POSModifierID     string `gorm:"column:iiko_modifier_id" json:"iikoModifierId"`
}

// TableName implements the GORM tabler interface.
func (CatalogMapping) TableName() string { return "catalog_mappings" }
