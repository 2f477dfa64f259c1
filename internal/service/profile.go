package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kondateapp/backend/internal/models"
)

// ProfileService reads the profile collaborator's records and builds the
// prompt context. Profiles are owned elsewhere; this is a read-only view.
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService creates a new ProfileService instance.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

// UserContext assembles dietary goals, preferences and allergens for one
// user. A missing profile yields a zero-value context rather than an
// error: generation can proceed without personalization.
func (s *ProfileService) UserContext(ctx context.Context, userID uuid.UUID) (UserContext, error) {
	var out UserContext

	var profile models.UserProfile
	err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return out, err
	}
	if err == nil {
		out.DietaryGoal = profile.DietaryGoal
		out.HouseholdSize = profile.HouseholdSize
		out.EnergyTargetKcal = profile.EnergyTargetKcal
	}

	var prefs []models.DietaryPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&prefs).Error; err != nil {
		return out, err
	}
	for _, p := range prefs {
		if p.PreferenceType == "custom" {
			out.DietaryPreferences = append(out.DietaryPreferences, p.CustomName)
		} else {
			out.DietaryPreferences = append(out.DietaryPreferences, p.PreferenceType)
		}
	}

	allergens, err := s.DeclaredAllergens(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Allergens = allergens
	return out, nil
}

// DeclaredAllergens returns the user's allergen names.
func (s *ProfileService) DeclaredAllergens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var alls []models.Allergen
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&alls).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(alls))
	for _, a := range alls {
		names = append(names, a.AllergenName)
	}
	return names, nil
}
