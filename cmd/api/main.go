package main

import (
	"go.uber.org/zap"

	"github.com/kondateapp/backend/config"
	"github.com/kondateapp/backend/internal/api"
	"github.com/kondateapp/backend/internal/database"
	"github.com/kondateapp/backend/internal/server"
	"github.com/kondateapp/backend/internal/service"
)

func main() {
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

	redisClient, err := database.NewRedisClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
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

	resolver := service.NewIngredientResolver(
		service.NewGormReferenceStore(db),
		generation,
		service.ResolverConfig{
			FuzzyThreshold:    cfg.Resolver.FuzzyThreshold,
			SemanticThreshold: cfg.Resolver.SemanticThreshold,
			FuzzyLimit:        cfg.Resolver.FuzzyLimit,
			SemanticLimit:     cfg.Resolver.SemanticLimit,
			LookupConcurrency: cfg.Resolver.LookupConcurrency,
			Families:          service.DefaultKeywordFamilies(),
		},
		logger,
	)

	meals := service.NewGormMealStore(db)
	requests := service.NewRedisShoppingRequestStore(redisClient)

	orchestrator := service.NewMenuOrchestrator(
		generation,
		resolver,
		service.NewGormJobStore(db),
		meals,
		service.NewRedisDraftCache(redisClient),
		service.NewProfileService(db),
		service.PlannerConfig{
			BatchSize:    cfg.Planner.BatchSize,
			FixesPerWeek: cfg.Planner.FixesPerWeek,
			FixCap:       cfg.Planner.FixCap,
			Concurrency:  cfg.Planner.Concurrency,
		},
		logger,
	)

	shopping := service.NewShoppingService(db, meals, requests, logger)

	srv := server.NewServer(api.Handlers{
		Planner:  orchestrator,
		Shopping: shopping,
		Redis:    redisClient,
		Logger:   logger,
	}, logger)

	if err := srv.Start(cfg.Server.Host + ":" + cfg.Server.Port); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
}
