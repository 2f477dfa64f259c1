package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MealType identifies a slot within a day.
type MealType string

const (
	MealTypeBreakfast     MealType = "breakfast"
	MealTypeLunch         MealType = "lunch"
	MealTypeDinner        MealType = "dinner"
	MealTypeSnack         MealType = "snack"
	MealTypeMidnightSnack MealType = "midnight_snack"
)

// DishRole classifies a dish within a meal; nutrient plausibility floors
// are keyed by role.
type DishRole string

const (
	DishRoleMain DishRole = "main"
	DishRoleRice DishRole = "rice"
	DishRoleSide DishRole = "side"
	DishRoleSoup DishRole = "soup"
)

// DishIngredient is one free-text ingredient line of a generated dish.
type DishIngredient struct {
	Name    string  `json:"name"`
	AmountG float64 `json:"amount_g"`
	Note    string  `json:"note,omitempty"`
}

// Dish is one dish of a generated meal.
type Dish struct {
	Name         string           `json:"name"`
	Role         DishRole         `json:"role"`
	Ingredients  []DishIngredient `json:"ingredients"`
	Instructions []string         `json:"instructions"`
}

// DishList stores a meal's dishes as JSONB.
type DishList []Dish

func (d DishList) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "[]", nil
	}
	return jsonbValue(d)
}

func (d *DishList) Scan(value interface{}) error {
	return jsonbScan(value, d)
}

// PlannedMeal is one accepted meal of a plan. Once accepted it is only ever
// replaced wholesale by a targeted regeneration, never edited in place.
type PlannedMeal struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	JobID       *uuid.UUID       `gorm:"type:uuid;index" json:"job_id,omitempty"`
	Date        time.Time        `gorm:"type:date;not null;index:idx_planned_meals_slot" json:"date"`
	MealType    MealType         `gorm:"size:20;not null;index:idx_planned_meals_slot" json:"meal_type"`
	Dishes      DishList         `gorm:"type:jsonb;not null;default:'[]'" json:"dishes"`
	Totals      NutrientVector   `gorm:"embedded;embeddedPrefix:total_" json:"totals"`
	MappingRate float64          `gorm:"type:float" json:"mapping_rate"`
	Warnings    JSONBStringArray `gorm:"type:jsonb;not null;default:'[]'" json:"warnings"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (PlannedMeal) TableName() string {
	return "planned_meals"
}

// IngredientMatchRecord is the persisted audit trail of one ingredient
// resolution, kept for debugging mapping quality.
type IngredientMatchRecord struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	MealID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"meal_id"`
	IngredientName  string     `gorm:"size:255;not null" json:"ingredient_name"`
	AmountG         float64    `gorm:"type:float" json:"amount_g"`
	ReferenceFoodID *uuid.UUID `gorm:"type:uuid" json:"reference_food_id,omitempty"`
	Similarity      float64    `gorm:"type:float" json:"similarity"`
	Method          string     `gorm:"size:20" json:"method"`
	Skipped         bool       `json:"skipped"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (IngredientMatchRecord) TableName() string {
	return "ingredient_match_records"
}
