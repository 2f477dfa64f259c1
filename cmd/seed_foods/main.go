package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/kondateapp/backend/config"
	"github.com/kondateapp/backend/internal/database"
	"github.com/kondateapp/backend/internal/models"
	"github.com/kondateapp/backend/internal/service"
)

// seedFood is one entry of the seed file: a reference food with its
// per-100g nutrient vector.
type seedFood struct {
	Name      string                `json:"name"`
	Category  string                `json:"category"`
	Nutrients models.NutrientVector `json:"nutrients"`
}

const embedBatchSize = 64

func main() {
	file := flag.String("file", "seed/reference_foods.json", "path to the reference food seed file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	generation, err := service.NewGenerationClient(service.GenerationConfig{
		APIURL:         cfg.Generation.APIURL,
		APIKey:         cfg.Generation.APIKey,
		Model:          cfg.Generation.Model,
		EmbeddingModel: cfg.Generation.EmbeddingModel,
		Timeout:        cfg.Generation.Timeout,
		MaxAttempts:    cfg.Generation.MaxAttempts,
		BackoffBase:    cfg.Generation.BackoffBase,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build generation client", zap.Error(err))
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("failed to read seed file", zap.String("file", *file), zap.Error(err))
	}
	var foods []seedFood
	if err := json.Unmarshal(data, &foods); err != nil {
		logger.Fatal("failed to parse seed file", zap.Error(err))
	}
	logger.Info("seeding reference foods", zap.Int("count", len(foods)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	for start := 0; start < len(foods); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(foods) {
			end = len(foods)
		}
		batch := foods[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Name
		}
		embeddings, err := generation.EmbedTexts(ctx, texts)
		if err != nil {
			logger.Fatal("failed to embed batch", zap.Int("offset", start), zap.Error(err))
		}

		rows := make([]models.ReferenceFood, len(batch))
		for i, f := range batch {
			rows[i] = models.ReferenceFood{
				ID:             uuid.New(),
				Name:           f.Name,
				NormalizedName: service.NormalizeName(f.Name),
				Category:       f.Category,
				Nutrients:      f.Nutrients,
				Embedding:      embeddings[i].Vector(),
			}
		}

		// Re-seeding updates existing rows instead of duplicating them.
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized_name"}},
			UpdateAll: true,
		}).Create(&rows).Error; err != nil {
			logger.Fatal("failed to insert batch", zap.Int("offset", start), zap.Error(err))
		}
		logger.Info("seeded batch", zap.Int("from", start), zap.Int("to", end))
	}

	logger.Info("reference food seeding complete")
}
