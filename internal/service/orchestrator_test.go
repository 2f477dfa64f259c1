package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondateapp/backend/internal/models"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

// fakeGenerator drafts a one-dish meal per requested slot and records the
// dates it was asked about.
type fakeGenerator struct {
	mu            sync.Mutex
	generateCalls []string
	reviewCalls   int
	reviewIssues  []ReviewIssue
	malformedDate string
	dishName      func(date string, mt models.MealType) string
}

func (g *fakeGenerator) GenerateDayMenu(_ context.Context, _ UserContext, date string, slots []models.MealType) (*DayMenuDraft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generateCalls = append(g.generateCalls, date)

	if date == g.malformedDate {
		return nil, fmt.Errorf("%w: meals missing", ErrMalformedDraft)
	}

	draft := &DayMenuDraft{Date: date}
	for _, mt := range slots {
		name := fmt.Sprintf("%s-%s", date, mt)
		if g.dishName != nil {
			name = g.dishName(date, mt)
		}
		draft.Meals = append(draft.Meals, MealDraft{
			MealType: mt,
			Dishes: []DishDraft{{
				Name: name,
				Role: models.DishRoleMain,
				Ingredients: []IngredientDraft{
					{Name: "豚ひき肉", AmountG: 150},
					{Name: "水", AmountG: 200},
				},
			}},
		})
	}
	return draft, nil
}

func (g *fakeGenerator) ReviewMenuRange(_ context.Context, _ []DaySummary) ([]ReviewIssue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reviewCalls++
	return g.reviewIssues, nil
}

func (g *fakeGenerator) callsFor(date string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, d := range g.generateCalls {
		if d == date {
			n++
		}
	}
	return n
}

// fakeResolver resolves everything to one stock reference food.
type fakeResolver struct{}

func (fakeResolver) ResolveAll(_ context.Context, queries []IngredientQuery) ([]IngredientMatch, error) {
	ref := storedFood("豚ひき肉")
	matches := make([]IngredientMatch, len(queries))
	for i, q := range queries {
		matches[i] = IngredientMatch{Query: q}
		if isWaterLike(NormalizeName(q.Name)) {
			matches[i].Skip = true
			continue
		}
		matches[i].Reference = &ref
		matches[i].Similarity = 1.0
		matches[i].Method = MatchMethodExact
	}
	return matches, nil
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.GenerationJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]models.GenerationJob)}
}

func (s *memJobStore) CreateJob(_ context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *memJobStore) UpdateJob(_ context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

type memMealStore struct {
	mu    sync.Mutex
	meals map[string]models.PlannedMeal
}

func newMemMealStore() *memMealStore {
	return &memMealStore{meals: make(map[string]models.PlannedMeal)}
}

func (s *memMealStore) ReplaceMeal(_ context.Context, meal *models.PlannedMeal, _ []models.IngredientMatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := meal.Date.Format(DateLayout) + ":" + string(meal.MealType)
	s.meals[key] = *meal
	return nil
}

func (s *memMealStore) GetMealsByJob(_ context.Context, jobID uuid.UUID) ([]models.PlannedMeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlannedMeal
	for _, m := range s.meals {
		if m.JobID != nil && *m.JobID == jobID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMealStore) GetMealsByPlan(_ context.Context, userID, _ uuid.UUID) ([]models.PlannedMeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlannedMeal
	for _, m := range s.meals {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memDraftCache struct {
	mu       sync.Mutex
	accepted map[string]struct{}
}

func newMemDraftCache() *memDraftCache {
	return &memDraftCache{accepted: make(map[string]struct{})}
}

func (c *memDraftCache) MarkAccepted(_ context.Context, jobID uuid.UUID, slotKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted[jobID.String()+":"+slotKey] = struct{}{}
	return nil
}

func (c *memDraftCache) IsAccepted(_ context.Context, jobID uuid.UUID, slotKey string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.accepted[jobID.String()+":"+slotKey]
	return ok, nil
}

type fakeProfiles struct {
	ctx       UserContext
	allergens []string
}

func (p fakeProfiles) UserContext(_ context.Context, _ uuid.UUID) (UserContext, error) {
	return p.ctx, nil
}

func (p fakeProfiles) DeclaredAllergens(_ context.Context, _ uuid.UUID) ([]string, error) {
	return p.allergens, nil
}

type orchestratorFixture struct {
	orch      *MenuOrchestrator
	generator *fakeGenerator
	jobs      *memJobStore
	meals     *memMealStore
	drafts    *memDraftCache
}

func newOrchestratorFixture(t *testing.T, generator *fakeGenerator, profiles IProfileProvider) *orchestratorFixture {
	t.Helper()
	if profiles == nil {
		profiles = fakeProfiles{}
	}
	f := &orchestratorFixture{
		generator: generator,
		jobs:      newMemJobStore(),
		meals:     newMemMealStore(),
		drafts:    newMemDraftCache(),
	}
	f.orch = NewMenuOrchestrator(generator, fakeResolver{}, f.jobs, f.meals, f.drafts, profiles, DefaultPlannerConfig(), nil)
	return f
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestSubmitJob(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeGenerator{}, nil)
	ctx := context.Background()

	t.Run("default slots synthesized", func(t *testing.T) {
		job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-07"), nil)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, job.Status)
		assert.Equal(t, 7, job.TotalDates)
		assert.Len(t, job.Slots, 21, "3 default slots per day")
		assert.Zero(t, job.Cursor)
	})

	t.Run("explicit slots deduplicated", func(t *testing.T) {
		slots := []models.TargetSlot{
			{Date: "2026-03-02", MealType: models.MealTypeDinner},
			{Date: "2026-03-02", MealType: models.MealTypeDinner},
		}
		job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-07"), slots)
		require.NoError(t, err)
		assert.Len(t, job.Slots, 1)
	})

	t.Run("reversed range rejected", func(t *testing.T) {
		_, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-07"), day(t, "2026-03-01"), nil)
		assert.Error(t, err)
	})
}

func TestRunGeneratesAllSlots(t *testing.T) {
	gen := &fakeGenerator{}
	f := newOrchestratorFixture(t, gen, nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-31"), nil)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, job.ID))

	final, err := f.orch.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 31, final.Cursor, "cursor lands on the range length")

	meals, err := f.meals.GetMealsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, meals, 93, "31 days x 3 default slots")
	assert.Equal(t, 1, gen.reviewCalls)

	result, err := f.orch.Result(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 93, result.Stats.MealsGenerated)
	assert.InDelta(t, 1.0, result.Stats.AverageMappingRate, 1e-9)
}

func TestRunResumesFromCursor(t *testing.T) {
	gen := &fakeGenerator{}
	f := newOrchestratorFixture(t, gen, nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-31"), nil)
	require.NoError(t, err)

	// Simulate an interrupted run: the first four batches landed and every
	// slot of those days is already accepted.
	job.Cursor = 24
	require.NoError(t, f.jobs.UpdateJob(ctx, job))
	dates := DatesInRange(job.StartDate, job.EndDate)
	for _, date := range dates[:24] {
		for _, mt := range defaultSlotTypes {
			require.NoError(t, f.drafts.MarkAccepted(ctx, job.ID, models.TargetSlot{Date: date, MealType: mt}.Key()))
		}
	}

	require.NoError(t, f.orch.Run(ctx, job.ID))

	for _, date := range dates[:24] {
		assert.Zero(t, gen.callsFor(date), "already accepted date %s must not regenerate", date)
	}
	for _, date := range dates[24:] {
		assert.Equal(t, 1, gen.callsFor(date))
	}
}

func TestRunSkipsAcceptedSlotsWithinDay(t *testing.T) {
	gen := &fakeGenerator{}
	f := newOrchestratorFixture(t, gen, nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-01"), nil)
	require.NoError(t, err)
	require.NoError(t, f.drafts.MarkAccepted(ctx, job.ID, models.TargetSlot{Date: "2026-03-01", MealType: models.MealTypeBreakfast}.Key()))

	require.NoError(t, f.orch.Run(ctx, job.ID))

	meals, err := f.meals.GetMealsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, meals, 2, "only lunch and dinner get drafted")
}

func TestRunOnTerminalJob(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeGenerator{}, nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-01"), nil)
	require.NoError(t, err)
	require.NoError(t, f.orch.Cancel(ctx, job.ID))

	assert.ErrorIs(t, f.orch.Run(ctx, job.ID), ErrJobTerminal)
	assert.ErrorIs(t, f.orch.Cancel(ctx, job.ID), ErrJobTerminal)
}

func TestRunMalformedSlotIsIsolated(t *testing.T) {
	gen := &fakeGenerator{malformedDate: "2026-03-02"}
	f := newOrchestratorFixture(t, gen, nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-03"), nil)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, job.ID))

	final, err := f.orch.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status, "one bad day must not fail the job")
	assert.Contains(t, final.Error, "schema validation")

	meals, err := f.meals.GetMealsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, meals, 6, "the other two days land in full")
}

func TestRunFixBudget(t *testing.T) {
	t.Run("review issues regenerate within budget", func(t *testing.T) {
		gen := &fakeGenerator{
			reviewIssues: []ReviewIssue{
				{Date: "2026-03-02", MealType: models.MealTypeDinner, Severity: 1, Category: "duplicate"},
				{Date: "2026-03-04", MealType: models.MealTypeLunch, Severity: 2, Category: "balance"},
			},
		}
		f := newOrchestratorFixture(t, gen, nil)
		ctx := context.Background()

		job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-07"), nil)
		require.NoError(t, err)
		require.NoError(t, f.orch.Run(ctx, job.ID))

		// One week allows fixesPerWeek regenerations and both issues fit.
		assert.Equal(t, 2, gen.callsFor("2026-03-02"))
		assert.Equal(t, 2, gen.callsFor("2026-03-04"))
	})

	t.Run("budget bounds regenerations", func(t *testing.T) {
		var issues []ReviewIssue
		for d := 1; d <= 7; d++ {
			issues = append(issues, ReviewIssue{
				Date:     fmt.Sprintf("2026-03-%02d", d),
				MealType: models.MealTypeDinner,
				Severity: 1,
			})
		}
		gen := &fakeGenerator{reviewIssues: issues}
		f := newOrchestratorFixture(t, gen, nil)
		ctx := context.Background()

		job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-07"), nil)
		require.NoError(t, err)
		require.NoError(t, f.orch.Run(ctx, job.ID))

		regens := 0
		for d := 1; d <= 7; d++ {
			regens += gen.callsFor(fmt.Sprintf("2026-03-%02d", d)) - 1
		}
		assert.Equal(t, 2, regens, "one week caps fixes at fixesPerWeek")
	})

	t.Run("issue on an untargeted slot never overwrites the existing meal", func(t *testing.T) {
		userID := mustUUID(t)
		gen := &fakeGenerator{
			reviewIssues: []ReviewIssue{
				{Date: "2026-03-03", MealType: models.MealTypeDinner, Severity: 1, Category: "balance"},
			},
		}
		f := newOrchestratorFixture(t, gen, nil)
		ctx := context.Background()

		// The user already has a dinner on the only targeted date; the job
		// only covers breakfast there.
		existing := &models.PlannedMeal{
			UserID:   userID,
			Date:     day(t, "2026-03-03"),
			MealType: models.MealTypeDinner,
			Dishes:   models.DishList{{Name: "肉じゃが"}},
		}
		require.NoError(t, f.meals.ReplaceMeal(ctx, existing, nil))

		job, err := f.orch.SubmitJob(ctx, userID, day(t, "2026-03-03"), day(t, "2026-03-03"),
			[]models.TargetSlot{{Date: "2026-03-03", MealType: models.MealTypeBreakfast}})
		require.NoError(t, err)
		require.NoError(t, f.orch.Run(ctx, job.ID))

		f.meals.mu.Lock()
		dinner := f.meals.meals["2026-03-03:"+string(models.MealTypeDinner)]
		f.meals.mu.Unlock()
		require.Len(t, dinner.Dishes, 1)
		assert.Equal(t, "肉じゃが", dinner.Dishes[0].Name, "untargeted slots are protected")
		assert.Equal(t, 1, gen.callsFor("2026-03-03"), "the issue must not trigger a regeneration")
	})

	t.Run("issues outside the job's slots are ignored", func(t *testing.T) {
		gen := &fakeGenerator{
			reviewIssues: []ReviewIssue{
				{Date: "2026-04-15", MealType: models.MealTypeDinner, Severity: 1},
			},
		}
		f := newOrchestratorFixture(t, gen, nil)
		ctx := context.Background()

		job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-07"), nil)
		require.NoError(t, err)
		require.NoError(t, f.orch.Run(ctx, job.ID))

		assert.Zero(t, gen.callsFor("2026-04-15"), "meals outside the range are protected")
	})
}

func TestRunAllergenGate(t *testing.T) {
	gen := &fakeGenerator{
		dishName: func(date string, mt models.MealType) string {
			if date == "2026-03-01" && mt == models.MealTypeBreakfast {
				return "卵焼き"
			}
			return string(mt) + "の定食"
		},
	}
	f := newOrchestratorFixture(t, gen, fakeProfiles{allergens: []string{"卵"}})
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-01"), nil)
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, job.ID))

	meals, err := f.meals.GetMealsByJob(ctx, job.ID)
	require.NoError(t, err)
	for _, m := range meals {
		for _, d := range m.Dishes {
			assert.NotEqual(t, "卵焼き", d.Name, "an allergen hit must never be persisted")
		}
	}
	// The rejected slot is flagged and consumes one regeneration.
	assert.GreaterOrEqual(t, gen.callsFor("2026-03-01"), 2)
}

func TestRunRecordsMappingWarnings(t *testing.T) {
	gen := &fakeGenerator{}
	f := &orchestratorFixture{
		generator: gen,
		jobs:      newMemJobStore(),
		meals:     newMemMealStore(),
		drafts:    newMemDraftCache(),
	}
	f.orch = NewMenuOrchestrator(gen, unresolvedResolver{}, f.jobs, f.meals, f.drafts, fakeProfiles{}, DefaultPlannerConfig(), nil)
	ctx := context.Background()

	job, err := f.orch.SubmitJob(ctx, mustUUID(t), day(t, "2026-03-01"), day(t, "2026-03-01"),
		[]models.TargetSlot{{Date: "2026-03-01", MealType: models.MealTypeDinner}})
	require.NoError(t, err)
	require.NoError(t, f.orch.Run(ctx, job.ID))

	meals, err := f.meals.GetMealsByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Zero(t, meals[0].MappingRate)
	require.NotEmpty(t, meals[0].Warnings)
	assert.Contains(t, meals[0].Warnings[0], "mapping rate")
}

// unresolvedResolver matches nothing, driving the mapping rate to zero.
type unresolvedResolver struct{}

func (unresolvedResolver) ResolveAll(_ context.Context, queries []IngredientQuery) ([]IngredientMatch, error) {
	matches := make([]IngredientMatch, len(queries))
	for i, q := range queries {
		matches[i] = IngredientMatch{Query: q}
	}
	return matches, nil
}

func TestSummarizeMeals(t *testing.T) {
	jobID := uuid.New()
	meals := []models.PlannedMeal{
		{
			JobID:    &jobID,
			Date:     day(t, "2026-03-01"),
			MealType: models.MealTypeDinner,
			Dishes:   models.DishList{{Name: "生姜焼き"}, {Name: "ごはん"}},
			Totals:   models.NutrientVector{EnergyKcal: 650},
		},
		{
			JobID:    &jobID,
			Date:     day(t, "2026-03-01"),
			MealType: models.MealTypeLunch,
			Dishes:   models.DishList{{Name: "うどん"}},
			Totals:   models.NutrientVector{EnergyKcal: 420},
		},
		{
			JobID:    &jobID,
			Date:     day(t, "2026-03-02"),
			MealType: models.MealTypeBreakfast,
			Dishes:   models.DishList{{Name: "トースト"}},
		},
	}
	days := summarizeMeals(meals)

	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.Len(t, days[0].Meals, 2)
	assert.Equal(t, []string{"生姜焼き", "ごはん"}, days[0].Meals[0].DishNames)
	assert.InDelta(t, 650, days[0].Meals[0].EnergyKcal, 1e-9)
	assert.Equal(t, "2026-03-02", days[1].Date)
}
