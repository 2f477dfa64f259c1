package models

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// ReferenceFood is one canonical entry of the nutrition-reference dataset.
// Nutrient values are per 100 g. The table is read-only during resolution.
type ReferenceFood struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	NormalizedName string          `gorm:"size:255;not null;uniqueIndex" json:"normalized_name"`
	Category       string          `gorm:"size:50" json:"category"`
	Nutrients      NutrientVector  `gorm:"embedded;embeddedPrefix:nutrient_" json:"nutrients"`
	Embedding      pgvector.Vector `gorm:"type:vector(384)" json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (ReferenceFood) TableName() string {
	return "reference_foods"
}
