package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kondateapp/backend/internal/models"
)

// IMenuGenerator is the structured-generation capability as the
// orchestrator sees it.
type IMenuGenerator interface {
	GenerateDayMenu(ctx context.Context, user UserContext, date string, slots []models.MealType) (*DayMenuDraft, error)
	ReviewMenuRange(ctx context.Context, days []DaySummary) ([]ReviewIssue, error)
}

// IIngredientResolver resolves a batch of ingredient queries.
type IIngredientResolver interface {
	ResolveAll(ctx context.Context, queries []IngredientQuery) ([]IngredientMatch, error)
}

// IJobStore persists generation jobs.
type IJobStore interface {
	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	UpdateJob(ctx context.Context, job *models.GenerationJob) error
}

// IMealStore persists accepted meals and their match audit trails.
type IMealStore interface {
	ReplaceMeal(ctx context.Context, meal *models.PlannedMeal, matches []models.IngredientMatchRecord) error
	GetMealsByJob(ctx context.Context, jobID uuid.UUID) ([]models.PlannedMeal, error)
	GetMealsByPlan(ctx context.Context, userID uuid.UUID, planID uuid.UUID) ([]models.PlannedMeal, error)
}

// IDraftCache tracks which slots a job has already accepted, so resuming
// an interrupted job never duplicates work.
type IDraftCache interface {
	MarkAccepted(ctx context.Context, jobID uuid.UUID, slotKey string) error
	IsAccepted(ctx context.Context, jobID uuid.UUID, slotKey string) (bool, error)
}

// IProfileProvider builds the prompt context from the external profile
// collaborator's records.
type IProfileProvider interface {
	UserContext(ctx context.Context, userID uuid.UUID) (UserContext, error)
	DeclaredAllergens(ctx context.Context, userID uuid.UUID) ([]string, error)
}
