package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kondateapp/backend/internal/models"
)

// GormJobStore persists generation jobs in Postgres.
type GormJobStore struct {
	db *gorm.DB
}

// NewGormJobStore creates a new GormJobStore instance.
func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

func (s *GormJobStore) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create generation job: %w", err)
	}
	return nil
}

func (s *GormJobStore) GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *GormJobStore) UpdateJob(ctx context.Context, job *models.GenerationJob) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to update generation job: %w", err)
	}
	return nil
}

// GormMealStore persists accepted meals and ingredient-match audit
// records.
type GormMealStore struct {
	db *gorm.DB
}

// NewGormMealStore creates a new GormMealStore instance.
func NewGormMealStore(db *gorm.DB) *GormMealStore {
	return &GormMealStore{db: db}
}

// ReplaceMeal swaps out any existing meal in the same slot and writes the
// new meal with its audit trail in one transaction. A regenerated slot is
// replaced wholesale, never patched.
func (s *GormMealStore) ReplaceMeal(ctx context.Context, meal *models.PlannedMeal, matches []models.IngredientMatchRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND date = ? AND meal_type = ?",
			meal.UserID, meal.Date, meal.MealType).
			Delete(&models.PlannedMeal{}).Error; err != nil {
			return err
		}

		if meal.ID == uuid.Nil {
			meal.ID = uuid.New()
		}
		if err := tx.Create(meal).Error; err != nil {
			return err
		}

		for i := range matches {
			matches[i].MealID = meal.ID
		}
		if len(matches) > 0 {
			if err := tx.Create(&matches).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormMealStore) GetMealsByJob(ctx context.Context, jobID uuid.UUID) ([]models.PlannedMeal, error) {
	var meals []models.PlannedMeal
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("date ASC, meal_type ASC").
		Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}

func (s *GormMealStore) GetMealsByPlan(ctx context.Context, userID uuid.UUID, planID uuid.UUID) ([]models.PlannedMeal, error) {
	var meals []models.PlannedMeal
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND job_id = ?", userID, planID).
		Order("date ASC, meal_type ASC").
		Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}
