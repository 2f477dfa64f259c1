package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemSource records where a shopping item came from. Manual entries win
// over generated ones when items are merged.
type ItemSource string

const (
	ItemSourceManual    ItemSource = "manual"
	ItemSourceGenerated ItemSource = "generated"
)

// QuantityVariant is one phrasing of an item's quantity. Variants in
// incompatible units are kept side by side; selecting one is an index
// change, never a recompute.
type QuantityVariant struct {
	Display string  `json:"display"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
}

// QuantityVariantList stores an item's quantity variants as JSONB.
type QuantityVariantList []QuantityVariant

func (l QuantityVariantList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return jsonbValue(l)
}

func (l *QuantityVariantList) Scan(value interface{}) error {
	return jsonbScan(value, l)
}

// ShoppingList groups the items derived from one plan.
type ShoppingList struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"plan_id"`
	Items     []ShoppingItem `gorm:"foreignKey:ListID" json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (ShoppingList) TableName() string {
	return "shopping_lists"
}

// ShoppingItem is one line of a shopping list.
type ShoppingItem struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ListID          uuid.UUID           `gorm:"type:uuid;not null;index" json:"list_id"`
	Name            string              `gorm:"size:255;not null" json:"name"`
	NormalizedName  string              `gorm:"size:255;not null;index" json:"normalized_name"`
	Category        string              `gorm:"size:50" json:"category"`
	Checked         bool                `gorm:"not null;default:false" json:"checked"`
	Source          ItemSource          `gorm:"size:20;not null;default:'generated'" json:"source"`
	Variants        QuantityVariantList `gorm:"type:jsonb;not null;default:'[]'" json:"variants"`
	SelectedVariant int                 `gorm:"not null;default:0" json:"selected_variant"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	DeletedAt       gorm.DeletedAt      `gorm:"index" json:"-"`
}

func (ShoppingItem) TableName() string {
	return "shopping_items"
}
