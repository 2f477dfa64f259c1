package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kondateapp/backend/internal/models"
)

// EmbeddingDimension is the fixed dimension of the embedding capability.
const EmbeddingDimension = 384

// Embedding is one vector returned by the embedding capability.
type Embedding []float32

// Vector converts the embedding into a pgvector value for index search.
func (e Embedding) Vector() pgvector.Vector {
	return pgvector.NewVector(e)
}

// IngredientDraft is one ingredient line of a generated dish, as the
// generation capability must shape it.
type IngredientDraft struct {
	Name    string  `json:"name"`
	AmountG float64 `json:"amount_g"`
	Note    string  `json:"note,omitempty"`
}

// DishDraft is one dish of a drafted meal.
type DishDraft struct {
	Name         string            `json:"name"`
	Role         models.DishRole   `json:"role"`
	Ingredients  []IngredientDraft `json:"ingredients"`
	Instructions []string          `json:"instructions"`
}

// MealDraft is one drafted meal slot.
type MealDraft struct {
	MealType models.MealType `json:"meal_type"`
	Dishes   []DishDraft     `json:"dishes"`
}

// DayMenuDraft is a full day of drafted meals, the unit of one generation
// call.
type DayMenuDraft struct {
	Date  string      `json:"date"`
	Meals []MealDraft `json:"meals"`
}

// Validate rejects drafts that violate the structured-output contract.
// Loosely-shaped payloads must not travel past the adapter boundary.
func (d *DayMenuDraft) Validate() error {
	if len(d.Meals) == 0 {
		return fmt.Errorf("draft has no meals")
	}
	for _, meal := range d.Meals {
		switch meal.MealType {
		case models.MealTypeBreakfast, models.MealTypeLunch, models.MealTypeDinner,
			models.MealTypeSnack, models.MealTypeMidnightSnack:
		default:
			return fmt.Errorf("unknown meal type %q", meal.MealType)
		}
		if len(meal.Dishes) == 0 {
			return fmt.Errorf("meal %s has no dishes", meal.MealType)
		}
		for _, dish := range meal.Dishes {
			if strings.TrimSpace(dish.Name) == "" {
				return fmt.Errorf("meal %s has a dish without a name", meal.MealType)
			}
			for _, ing := range dish.Ingredients {
				if strings.TrimSpace(ing.Name) == "" {
					return fmt.Errorf("dish %s has an ingredient without a name", dish.Name)
				}
				if ing.AmountG < 0 {
					return fmt.Errorf("dish %s has a negative amount for %s", dish.Name, ing.Name)
				}
			}
		}
	}
	return nil
}

// ReviewIssue is one cross-day problem found by the review stage.
type ReviewIssue struct {
	Date     string          `json:"date"`
	MealType models.MealType `json:"meal_type"`
	Severity int             `json:"severity"`
	Category string          `json:"category"`
	Reason   string          `json:"reason"`
}

// Slot returns the target slot the issue points at.
func (i ReviewIssue) Slot() models.TargetSlot {
	return models.TargetSlot{Date: i.Date, MealType: i.MealType}
}

// UserContext is the profile-derived planning context handed to prompts.
type UserContext struct {
	DietaryGoal        string
	HouseholdSize      int
	EnergyTargetKcal   float64
	DietaryPreferences []string
	Allergens          []string
}

// MealSummary and DaySummary form the compact range summary submitted to
// the review stage (never full dish text).
type MealSummary struct {
	MealType   models.MealType `json:"meal_type"`
	DishNames  []string        `json:"dish_names"`
	EnergyKcal float64         `json:"energy_kcal"`
}

type DaySummary struct {
	Date  string        `json:"date"`
	Meals []MealSummary `json:"meals"`
}

// GenerationConfig carries the adapter's connection and retry settings.
type GenerationConfig struct {
	APIURL         string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
}

// DefaultGenerationConfig returns the stock adapter settings.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:          "kondate-chef-1",
		EmbeddingModel: "kondate-embed-384",
		Timeout:        60 * time.Second,
		MaxAttempts:    5,
		BackoffBase:    500 * time.Millisecond,
	}
}

// GenerationClient wraps every call to the external structured-generation
// and embedding capability. It is the only place that reasons about HTTP
// status codes; callers above it see drafts, issues and vectors, or errors.
type GenerationClient struct {
	client *resty.Client
	cfg    GenerationConfig
	logger *zap.Logger
}

// NewGenerationClient creates a new GenerationClient instance.
func NewGenerationClient(cfg GenerationConfig, logger *zap.Logger) (*GenerationClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key must be set")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)

	return &GenerationClient{client: client, cfg: cfg, logger: logger}, nil
}

// failureKind classifies one failed call so the retry loop is a pure
// decision over the kind, not over raw status codes.
type failureKind int

const (
	failureNone failureKind = iota
	failureRetryable
	failureFatal
)

// classifyFailure maps a transport error or HTTP status to a failure kind.
// Rate limits and server errors are retryable; anything else is fatal.
func classifyFailure(statusCode int, err error) failureKind {
	if err != nil {
		return failureRetryable
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return failureNone
	case statusCode == http.StatusTooManyRequests:
		return failureRetryable
	case statusCode >= 500:
		return failureRetryable
	default:
		return failureFatal
	}
}

const backoffJitterMax = 250 * time.Millisecond

// backoffDelay computes base * 2^attempt plus up to 250ms of jitter.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	return base*(1<<attempt) + time.Duration(rand.Int63n(int64(backoffJitterMax)))
}

// callWithRetry runs one external call under the retry budget. Retryable
// failures back off exponentially with jitter; fatal failures and context
// cancellation propagate immediately.
func (c *GenerationClient) callWithRetry(ctx context.Context, op string, call func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		resp, err := call(ctx)

		var status int
		if resp != nil {
			status = resp.StatusCode()
		}
		switch classifyFailure(status, err) {
		case failureNone:
			return resp, nil
		case failureFatal:
			return nil, fmt.Errorf("%s failed with status %d: %s", op, status, resp.String())
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s failed with status %d", op, status)
		}
		if c.logger != nil {
			c.logger.Warn("retrying generation call",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("status", status),
				zap.Error(err))
		}

		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(attempt, c.cfg.BackoffBase)):
		}
	}
	return nil, fmt.Errorf("%s: retry budget exhausted: %w", op, lastErr)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// completeJSON runs one JSON-mode chat completion and returns the raw
// content string of the first choice.
func (c *GenerationClient) completeJSON(ctx context.Context, op, system, user string, temperature float64) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    temperature,
	}

	resp, err := c.callWithRetry(ctx, op, func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetBody(body).Post("/chat/completions")
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", op)
	}
	return parsed.Choices[0].Message.Content, nil
}

const dayMenuSystemPrompt = `あなたは家庭の献立を考える管理栄養士です。指定された日付と食事枠の献立を作成してください。
Respond only with JSON of this shape:
{
  "date": "2006-01-02",
  "meals": [
    {
      "meal_type": "breakfast|lunch|dinner|snack|midnight_snack",
      "dishes": [
        {
          "name": "料理名",
          "role": "main|rice|side|soup",
          "ingredients": [{"name": "材料名", "amount_g": 100, "note": ""}],
          "instructions": ["手順1", "手順2"]
        }
      ]
    }
  ]
}
amount_g must be grams as a number. Use common short ingredient names.`

// GenerateDayMenu requests a full day's meals in one call. A payload that
// fails schema validation is re-requested once, then the slot fails with
// ErrMalformedDraft while other slots stay intact.
func (c *GenerationClient) GenerateDayMenu(ctx context.Context, user UserContext, date string, slots []models.MealType) (*DayMenuDraft, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "日付: %s\n", date)
	fmt.Fprintf(&sb, "食事枠: %s\n", joinMealTypes(slots))
	if user.DietaryGoal != "" {
		fmt.Fprintf(&sb, "目標: %s\n", user.DietaryGoal)
	}
	if user.HouseholdSize > 0 {
		fmt.Fprintf(&sb, "人数: %d\n", user.HouseholdSize)
	}
	if user.EnergyTargetKcal > 0 {
		fmt.Fprintf(&sb, "1日の目標カロリー: %.0fkcal\n", user.EnergyTargetKcal)
	}
	if len(user.DietaryPreferences) > 0 {
		fmt.Fprintf(&sb, "食事の方針: %s\n", strings.Join(user.DietaryPreferences, ", "))
	}
	if len(user.Allergens) > 0 {
		fmt.Fprintf(&sb, "使用禁止の食材（アレルギー）: %s\n", strings.Join(user.Allergens, ", "))
	}

	var lastErr error
	// Malformed structured output gets exactly one bounded re-request.
	for attempt := 0; attempt < 2; attempt++ {
		content, err := c.completeJSON(ctx, "generate day menu", dayMenuSystemPrompt, sb.String(), 0.8)
		if err != nil {
			return nil, err
		}

		var draft DayMenuDraft
		if err := json.Unmarshal([]byte(content), &draft); err != nil {
			lastErr = err
			continue
		}
		if err := draft.Validate(); err != nil {
			lastErr = err
			continue
		}
		if draft.Date == "" {
			draft.Date = date
		}
		return &draft, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedDraft, lastErr)
}

const reviewSystemPrompt = `あなたは1週間分の献立をレビューする管理栄養士です。重複した料理、日をまたいだ栄養の偏り、役割の不一致を指摘してください。
Respond only with JSON: {"issues": [{"date": "2006-01-02", "meal_type": "dinner", "severity": 1, "category": "duplicate", "reason": "..."}]}
severity: 1 (most important) and up. Return {"issues": []} when nothing needs fixing.`

// ReviewMenuRange submits a compact summary of the generated range and
// returns the issues the review capability found.
func (c *GenerationClient) ReviewMenuRange(ctx context.Context, days []DaySummary) ([]ReviewIssue, error) {
	summary, err := json.Marshal(map[string]interface{}{"days": days})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal range summary: %w", err)
	}

	content, err := c.completeJSON(ctx, "review menu range", reviewSystemPrompt, string(summary), 0.2)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Issues []ReviewIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse review issues: %w", err)
	}
	return parsed.Issues, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts returns one fixed-dimension vector per input string, order
// preserved.
func (c *GenerationClient) EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: texts}
	resp, err := c.callWithRetry(ctx, "embed texts", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetBody(body).Post("/embeddings")
	})
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ErrEmbeddingCountMismatch
	}

	embeddings := make([]Embedding, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != EmbeddingDimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(d.Embedding), EmbeddingDimension)
		}
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

func joinMealTypes(slots []models.MealType) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
