package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job. Completed and
// failed are terminal; a new job must be created to retry.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TargetSlot identifies one (date, mealType) pair a job must (re)generate.
// PlannedMealID binds the slot to an existing meal that may be overwritten;
// slots not listed on the job are protected.
type TargetSlot struct {
	Date          string     `json:"date"`
	MealType      MealType   `json:"meal_type"`
	PlannedMealID *uuid.UUID `json:"planned_meal_id,omitempty"`
}

// Key is the composite dedup key for a slot.
func (s TargetSlot) Key() string {
	return fmt.Sprintf("%s:%s", s.Date, s.MealType)
}

// TargetSlotList stores a job's target slots as JSONB.
type TargetSlotList []TargetSlot

func (l TargetSlotList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return jsonbValue(l)
}

func (l *TargetSlotList) Scan(value interface{}) error {
	return jsonbScan(value, l)
}

// GenerationJob tracks a long-running range generation request. The cursor
// counts already-processed dates in the sorted date list, so an interrupted
// job can resume from its last persisted position.
type GenerationJob struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Status     JobStatus      `gorm:"size:20;not null;default:'queued'" json:"status"`
	StartDate  time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate    time.Time      `gorm:"type:date;not null" json:"end_date"`
	Slots      TargetSlotList `gorm:"type:jsonb;not null;default:'[]'" json:"slots"`
	Cursor     int            `gorm:"not null;default:0" json:"cursor"`
	TotalDates int            `gorm:"not null;default:0" json:"total_dates"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
