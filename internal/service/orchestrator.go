package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kondateapp/backend/internal/models"
)

// PlannerConfig carries the orchestrator's batching and fix-budget
// settings.
type PlannerConfig struct {
	BatchSize    int
	FixesPerWeek int
	FixCap       int
	Concurrency  int
}

// DefaultPlannerConfig returns the stock orchestration settings.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		BatchSize:    6,
		FixesPerWeek: 2,
		FixCap:       12,
	}
}

// JobStats summarizes a completed job's output.
type JobStats struct {
	MealsGenerated     int      `json:"meals_generated"`
	AverageMappingRate float64  `json:"average_mapping_rate"`
	MealsWithWarnings  int      `json:"meals_with_warnings"`
	FailedSlots        []string `json:"failed_slots,omitempty"`
}

// JobResult is the payload returned once a job completes.
type JobResult struct {
	Meals []models.PlannedMeal `json:"meals"`
	Stats JobStats             `json:"stats"`
}

// MenuOrchestrator runs the staged generate → review → repair pipeline
// over a date range. Each job is owned by exactly one orchestrator run;
// the persisted job record and the accepted-slot cache are the only
// shared state.
type MenuOrchestrator struct {
	generator IMenuGenerator
	resolver  IIngredientResolver
	jobs      IJobStore
	meals     IMealStore
	drafts    IDraftCache
	profiles  IProfileProvider
	cfg       PlannerConfig
	logger    *zap.Logger
}

// NewMenuOrchestrator creates a new MenuOrchestrator instance.
func NewMenuOrchestrator(
	generator IMenuGenerator,
	resolver IIngredientResolver,
	jobs IJobStore,
	meals IMealStore,
	drafts IDraftCache,
	profiles IProfileProvider,
	cfg PlannerConfig,
	logger *zap.Logger,
) *MenuOrchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 6
	}
	if cfg.FixesPerWeek <= 0 {
		cfg.FixesPerWeek = 2
	}
	if cfg.FixCap <= 0 {
		cfg.FixCap = 12
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.BatchSize
	}
	return &MenuOrchestrator{
		generator: generator,
		resolver:  resolver,
		jobs:      jobs,
		meals:     meals,
		drafts:    drafts,
		profiles:  profiles,
		cfg:       cfg,
		logger:    logger,
	}
}

// defaultSlotTypes are the slots generated when a request names none.
var defaultSlotTypes = []models.MealType{
	models.MealTypeBreakfast,
	models.MealTypeLunch,
	models.MealTypeDinner,
}

// SubmitJob validates and persists a new range job in the queued state.
// The caller decides when to run it; submission itself never generates.
func (o *MenuOrchestrator) SubmitJob(ctx context.Context, userID uuid.UUID, start, end time.Time, slots []models.TargetSlot) (*models.GenerationJob, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", end.Format(DateLayout), start.Format(DateLayout))
	}

	dates := DatesInRange(start, end)
	if len(slots) == 0 {
		for _, d := range dates {
			for _, mt := range defaultSlotTypes {
				slots = append(slots, models.TargetSlot{Date: d, MealType: mt})
			}
		}
	}
	slots = DedupSlots(slots)

	job := &models.GenerationJob{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     models.JobStatusQueued,
		StartDate:  start,
		EndDate:    end,
		Slots:      slots,
		TotalDates: len(dates),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Status returns the persisted job record. Polling is side-effect-free.
func (o *MenuOrchestrator) Status(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// Cancel cooperatively stops a job: the terminal state is recorded now
// and takes effect before the next batch is picked up. Batches already
// dispatched run to completion.
func (o *MenuOrchestrator) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	job.Status = models.JobStatusFailed
	job.Error = "cancelled by caller"
	return o.jobs.UpdateJob(ctx, job)
}

// Result returns the accepted meals and stats for a completed job.
func (o *MenuOrchestrator) Result(ctx context.Context, jobID uuid.UUID) (*JobResult, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s, not completed", jobID, job.Status)
	}

	meals, err := o.meals.GetMealsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	stats := JobStats{MealsGenerated: len(meals)}
	var rateSum float64
	for _, m := range meals {
		rateSum += m.MappingRate
		if len(m.Warnings) > 0 {
			stats.MealsWithWarnings++
		}
	}
	if len(meals) > 0 {
		stats.AverageMappingRate = rateSum / float64(len(meals))
	}
	return &JobResult{Meals: meals, Stats: stats}, nil
}

// runState is the in-memory scratch of one orchestrator run.
type runState struct {
	mu          sync.Mutex
	flagged     []ReviewIssue
	failedSlots []string
}

func (st *runState) addFlagged(issue ReviewIssue) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.flagged = append(st.flagged, issue)
}

func (st *runState) addFailedSlot(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failedSlots = append(st.failedSlots, key)
}

// Run drives a job through all three stages. It resumes from the
// persisted cursor, so re-running after an interruption repeats no
// accepted slot.
func (o *MenuOrchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}

	job.Status = models.JobStatusProcessing
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	userCtx, err := o.profiles.UserContext(ctx, job.UserID)
	if err != nil {
		return o.failJob(ctx, job, fmt.Errorf("failed to load user context: %w", err))
	}
	declared, err := o.profiles.DeclaredAllergens(ctx, job.UserID)
	if err != nil {
		return o.failJob(ctx, job, fmt.Errorf("failed to load allergens: %w", err))
	}

	dates := DatesInRange(job.StartDate, job.EndDate)
	slotsByDate := make(map[string][]models.MealType)
	targetKeys := make(map[string]struct{})
	for _, s := range DedupSlots(job.Slots) {
		slotsByDate[s.Date] = append(slotsByDate[s.Date], s.MealType)
		targetKeys[s.Key()] = struct{}{}
	}

	st := &runState{}

	// Stage 1: draft generation in fixed-size day batches. Days inside a
	// batch are independent until review, so they run concurrently.
	for job.Cursor < len(dates) {
		current, err := o.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return o.failJob(ctx, job, err)
		}
		if current.Status.Terminal() {
			// Cancelled between batches; the recorded state stands.
			return nil
		}

		end := job.Cursor + o.cfg.BatchSize
		if end > len(dates) {
			end = len(dates)
		}
		batch := dates[job.Cursor:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for _, date := range batch {
			date := date
			slotTypes := slotsByDate[date]
			if len(slotTypes) == 0 {
				continue
			}
			g.Go(func() error {
				return o.generateDay(gctx, job, userCtx, declared, date, slotTypes, false, st)
			})
		}
		if err := g.Wait(); err != nil {
			return o.failJob(ctx, job, err)
		}

		job.Cursor = ComputeNextCursor(job.Cursor, o.cfg.BatchSize, len(dates))
		if err := o.jobs.UpdateJob(ctx, job); err != nil {
			return o.failJob(ctx, job, err)
		}
		if o.logger != nil {
			o.logger.Info("draft batch complete",
				zap.String("job_id", job.ID.String()),
				zap.Int("cursor", job.Cursor),
				zap.Int("total_dates", len(dates)))
		}
	}

	// Stage 2: whole-range review over a compact summary.
	accepted, err := o.meals.GetMealsByJob(ctx, job.ID)
	if err != nil {
		return o.failJob(ctx, job, err)
	}
	issues := append([]ReviewIssue{}, st.flagged...)
	if len(accepted) > 0 {
		reviewIssues, err := o.generator.ReviewMenuRange(ctx, summarizeMeals(accepted))
		if err != nil {
			return o.failJob(ctx, job, fmt.Errorf("review stage failed: %w", err))
		}
		issues = append(issues, reviewIssues...)
	}

	// Stage 3: bounded regeneration in priority order.
	budget := ComputeMaxFixesForRange(len(dates), len(issues), o.cfg.FixesPerWeek, o.cfg.FixCap)
	SortIssuesByPriority(issues)
	fixed := make(map[string]struct{})
	for _, issue := range issues {
		if budget <= 0 {
			break
		}
		key := issue.Slot().Key()
		if _, done := fixed[key]; done {
			continue
		}
		if _, tracked := targetKeys[key]; !tracked {
			// Review pointed outside the job's target slots; never touch
			// protected meals.
			continue
		}
		if err := o.generateDay(ctx, job, userCtx, declared, issue.Date, []models.MealType{issue.MealType}, true, st); err != nil {
			return o.failJob(ctx, job, err)
		}
		fixed[key] = struct{}{}
		budget--
	}

	job.Status = models.JobStatusCompleted
	if len(st.failedSlots) > 0 {
		job.Error = fmt.Sprintf("%d slot(s) failed schema validation: %v", len(st.failedSlots), st.failedSlots)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	if o.logger != nil {
		o.logger.Info("generation job completed",
			zap.String("job_id", job.ID.String()),
			zap.Int("issues_found", len(issues)),
			zap.Int("failed_slots", len(st.failedSlots)))
	}
	return nil
}

// failJob records a terminal failure, keeping the last good cursor so a
// caller can inspect partial progress and resume with a new job.
func (o *MenuOrchestrator) failJob(ctx context.Context, job *models.GenerationJob, cause error) error {
	job.Status = models.JobStatusFailed
	job.Error = cause.Error()
	if err := o.jobs.UpdateJob(ctx, job); err != nil && o.logger != nil {
		o.logger.Error("failed to persist job failure", zap.Error(err))
	}
	return cause
}

// generateDay drafts one day's target slots, resolves and gates every
// dish, and persists accepted meals. With force=false, slots already
// accepted for this job are skipped; regeneration passes force=true.
func (o *MenuOrchestrator) generateDay(ctx context.Context, job *models.GenerationJob, userCtx UserContext, declared []string, date string, slotTypes []models.MealType, force bool, st *runState) error {
	wanted := make([]models.MealType, 0, len(slotTypes))
	for _, mt := range slotTypes {
		key := models.TargetSlot{Date: date, MealType: mt}.Key()
		if !force {
			done, err := o.drafts.IsAccepted(ctx, job.ID, key)
			if err != nil {
				return err
			}
			if done {
				continue
			}
		}
		wanted = append(wanted, mt)
	}
	if len(wanted) == 0 {
		return nil
	}

	draft, err := o.generator.GenerateDayMenu(ctx, userCtx, date, wanted)
	if err != nil {
		if errors.Is(err, ErrMalformedDraft) {
			// Slot-scoped failure: other slots stay intact.
			for _, mt := range wanted {
				st.addFailedSlot(models.TargetSlot{Date: date, MealType: mt}.Key())
			}
			if o.logger != nil {
				o.logger.Warn("day draft failed schema validation",
					zap.String("date", date), zap.Error(err))
			}
			return nil
		}
		return err
	}

	wantedSet := make(map[models.MealType]struct{}, len(wanted))
	for _, mt := range wanted {
		wantedSet[mt] = struct{}{}
	}

	for _, meal := range draft.Meals {
		if _, ok := wantedSet[meal.MealType]; !ok {
			// Drafts must not touch slots the job does not target.
			continue
		}
		if err := o.acceptMeal(ctx, job, declared, date, meal, st); err != nil {
			return err
		}
	}
	return nil
}

// acceptMeal runs one drafted meal through resolution, aggregation and
// the allergen gate, then persists it. An allergen hit rejects the draft
// and flags the slot for regeneration; it is never silently served.
func (o *MenuOrchestrator) acceptMeal(ctx context.Context, job *models.GenerationJob, declared []string, date string, meal MealDraft, st *runState) error {
	slot := models.TargetSlot{Date: date, MealType: meal.MealType}

	var texts []string
	for _, dish := range meal.Dishes {
		texts = append(texts, dish.Name)
		for _, ing := range dish.Ingredients {
			texts = append(texts, ing.Name)
		}
	}
	if hits := DetectAllergenHits(declared, texts); len(hits) > 0 {
		summaries := make([]string, len(hits))
		for i, h := range hits {
			summaries[i] = h.Summary()
		}
		st.addFlagged(ReviewIssue{
			Date:     date,
			MealType: meal.MealType,
			Severity: 0,
			Category: "allergen",
			Reason:   fmt.Sprintf("draft contains declared allergens: %v", summaries),
		})
		if o.logger != nil {
			o.logger.Warn("draft rejected by allergen gate",
				zap.String("slot", slot.Key()),
				zap.Strings("hits", summaries))
		}
		return nil
	}

	// Resolve every ingredient of the meal in one pass, tracking dish
	// boundaries so per-dish floors stay checkable.
	var queries []IngredientQuery
	bounds := make([][2]int, len(meal.Dishes))
	for i, dish := range meal.Dishes {
		lo := len(queries)
		for _, ing := range dish.Ingredients {
			queries = append(queries, IngredientQuery{Name: ing.Name, AmountG: ing.AmountG, Note: ing.Note})
		}
		bounds[i] = [2]int{lo, len(queries)}
	}

	matches, err := o.resolver.ResolveAll(ctx, queries)
	if err != nil {
		return fmt.Errorf("ingredient resolution failed for %s: %w", slot.Key(), err)
	}

	totals := Aggregate(matches)
	rate := MappingRate(matches)

	var warnings []string
	if rate < MinMappingRate {
		warnings = append(warnings, fmt.Sprintf("low ingredient mapping rate: %.2f", rate))
	}
	for i, dish := range meal.Dishes {
		dishTotals := Aggregate(matches[bounds[i][0]:bounds[i][1]])
		if w := CheckNutrientFloor(dish.Role, dishTotals); w != "" {
			warnings = append(warnings, w)
			st.addFlagged(ReviewIssue{
				Date:     date,
				MealType: meal.MealType,
				Severity: 1,
				Category: "nutrient_floor",
				Reason:   w,
			})
		}
	}

	mealDate, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	dishes := make(models.DishList, len(meal.Dishes))
	for i, d := range meal.Dishes {
		ings := make([]models.DishIngredient, len(d.Ingredients))
		for j, ing := range d.Ingredients {
			ings[j] = models.DishIngredient{Name: ing.Name, AmountG: ing.AmountG, Note: ing.Note}
		}
		dishes[i] = models.Dish{
			Name:         d.Name,
			Role:         d.Role,
			Ingredients:  ings,
			Instructions: d.Instructions,
		}
	}

	jobID := job.ID
	planned := &models.PlannedMeal{
		UserID:      job.UserID,
		JobID:       &jobID,
		Date:        mealDate,
		MealType:    meal.MealType,
		Dishes:      dishes,
		Totals:      totals,
		MappingRate: rate,
		Warnings:    warnings,
	}

	records := make([]models.IngredientMatchRecord, len(matches))
	for i, m := range matches {
		records[i] = models.IngredientMatchRecord{
			IngredientName: m.Query.Name,
			AmountG:        m.Query.AmountG,
			Similarity:     m.Similarity,
			Method:         string(m.Method),
			Skipped:        m.Skip,
		}
		if m.Reference != nil {
			refID := m.Reference.ID
			records[i].ReferenceFoodID = &refID
		}
	}

	if err := o.meals.ReplaceMeal(ctx, planned, records); err != nil {
		return fmt.Errorf("failed to persist meal %s: %w", slot.Key(), err)
	}
	return o.drafts.MarkAccepted(ctx, job.ID, slot.Key())
}

// summarizeMeals builds the compact per-day summary the review stage
// consumes.
func summarizeMeals(meals []models.PlannedMeal) []DaySummary {
	byDate := make(map[string]*DaySummary)
	var order []string
	for _, m := range meals {
		date := m.Date.Format(DateLayout)
		day, ok := byDate[date]
		if !ok {
			day = &DaySummary{Date: date}
			byDate[date] = day
			order = append(order, date)
		}
		names := make([]string, len(m.Dishes))
		for i, d := range m.Dishes {
			names[i] = d.Name
		}
		day.Meals = append(day.Meals, MealSummary{
			MealType:   m.MealType,
			DishNames:  names,
			EnergyKcal: m.Totals.EnergyKcal,
		})
	}

	out := make([]DaySummary, 0, len(order))
	for _, date := range order {
		out = append(out, *byDate[date])
	}
	return out
}
