package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kondateapp/backend/internal/models"
)

// extensions required before the schema migrates: trigram similarity for
// fuzzy lookup, pgvector for embedding search.
var extensions = []string{
	"CREATE EXTENSION IF NOT EXISTS pg_trgm",
	"CREATE EXTENSION IF NOT EXISTS vector",
}

// indexes that GORM tags cannot express.
var indexes = []string{
	// Trigram index backing similarity() lookups on reference food names.
	"CREATE INDEX IF NOT EXISTS idx_reference_foods_name_trgm ON reference_foods USING gin (normalized_name gin_trgm_ops)",
	// Approximate nearest neighbor index for embedding search.
	"CREATE INDEX IF NOT EXISTS idx_reference_foods_embedding ON reference_foods USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
}

// Migrate brings the schema up to date.
func Migrate(db *gorm.DB) error {
	for _, stmt := range extensions {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to enable extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.ReferenceFood{},
		&models.UserProfile{},
		&models.DietaryPreference{},
		&models.Allergen{},
		&models.GenerationJob{},
		&models.PlannedMeal{},
		&models.IngredientMatchRecord{},
		&models.ShoppingList{},
		&models.ShoppingItem{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
