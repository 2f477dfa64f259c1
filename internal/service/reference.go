package service

import (
	"context"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/kondateapp/backend/internal/models"
)

// ReferenceCandidate is one ranked hit from a similarity search, carrying
// the full per-100g nutrient vector.
type ReferenceCandidate struct {
	Food       models.ReferenceFood
	Similarity float64
}

// ReferenceStore is the read path into the nutrition-reference dataset.
type ReferenceStore interface {
	// FindExactByKeys resolves normalized-name keys in one round trip.
	FindExactByKeys(ctx context.Context, keys []string) (map[string]models.ReferenceFood, error)
	// SearchSimilar runs a trigram similarity search over normalized names.
	SearchSimilar(ctx context.Context, name string, threshold float64, limit int) ([]ReferenceCandidate, error)
	// SearchByEmbedding runs a nearest-neighbor search over the embedding index.
	SearchByEmbedding(ctx context.Context, vec pgvector.Vector, limit int) ([]ReferenceCandidate, error)
}

// GormReferenceStore implements ReferenceStore against Postgres with the
// pg_trgm and pgvector extensions.
type GormReferenceStore struct {
	db *gorm.DB
}

// NewGormReferenceStore creates a new GormReferenceStore instance.
func NewGormReferenceStore(db *gorm.DB) *GormReferenceStore {
	return &GormReferenceStore{db: db}
}

func (s *GormReferenceStore) FindExactByKeys(ctx context.Context, keys []string) (map[string]models.ReferenceFood, error) {
	result := make(map[string]models.ReferenceFood, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var foods []models.ReferenceFood
	if err := s.db.WithContext(ctx).
		Where("normalized_name IN ?", keys).
		Find(&foods).Error; err != nil {
		return nil, err
	}

	for _, f := range foods {
		result[f.NormalizedName] = f
	}
	return result, nil
}

type candidateRow struct {
	models.ReferenceFood `gorm:"embedded"`
	Score                float64 `gorm:"column:score"`
}

func (s *GormReferenceStore) SearchSimilar(ctx context.Context, name string, threshold float64, limit int) ([]ReferenceCandidate, error) {
	var rows []candidateRow
	err := s.db.WithContext(ctx).
		Table("reference_foods").
		Select("*, similarity(normalized_name, ?) AS score", name).
		Where("similarity(normalized_name, ?) >= ?", name, threshold).
		Order("score DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToCandidates(rows), nil
}

func (s *GormReferenceStore) SearchByEmbedding(ctx context.Context, vec pgvector.Vector, limit int) ([]ReferenceCandidate, error) {
	var rows []candidateRow
	// Cosine distance; similarity is 1 - distance.
	err := s.db.WithContext(ctx).
		Table("reference_foods").
		Select("*, 1 - (embedding <=> ?) AS score", vec).
		Order("score DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToCandidates(rows), nil
}

func rowsToCandidates(rows []candidateRow) []ReferenceCandidate {
	candidates := make([]ReferenceCandidate, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, ReferenceCandidate{Food: r.ReferenceFood, Similarity: r.Score})
	}
	return candidates
}
