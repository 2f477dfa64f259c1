package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kondateapp/backend/internal/models"
)

// groceryAliases collapses shopping-specific wording on top of the shared
// name normalization, so "玉子" and "卵" land on one list line. Applied in
// order; longer entries come before any entry they contain.
var groceryAliases = []struct{ from, to string }{
	{"玉子", "卵"},
	{"たまご", "卵"},
	{"豚ミンチ", "豚ひき肉"},
	{"牛ミンチ", "牛ひき肉"},
	{"鶏ミンチ", "鶏ひき肉"},
	{"長ネギ", "ながねぎ"},
	{"お豆腐", "豆腐"},
	{"おとうふ", "豆腐"},
	{"おしょうゆ", "しょうゆ"},
	{"お醤油", "しょうゆ"},
	{"醤油", "しょうゆ"},
}

// NormalizeGroceryName builds the merge key for shopping items.
func NormalizeGroceryName(name string) string {
	s := strings.TrimSpace(name)
	for _, a := range groceryAliases {
		s = strings.ReplaceAll(s, a.from, a.to)
	}
	return NormalizeName(s)
}

// unitConversions maps a recognized unit to its canonical unit and the
// factor into it. Units absent here cannot be summed with anything else.
var unitConversions = map[string]struct {
	canonical string
	factor    float64
}{
	"g":  {"g", 1},
	"kg": {"g", 1000},
	"ml": {"ml", 1},
	"l":  {"ml", 1000},
	"cc": {"ml", 1},
}

// ParseQuantity splits a quantity phrase into value and unit, e.g.
// "300g" or "2個". Unparsable phrases keep value 0 and an empty unit so
// they merge only with themselves.
func ParseQuantity(display string) models.QuantityVariant {
	s := strings.TrimSpace(display)
	v := models.QuantityVariant{Display: display}

	var numEnd int
	for numEnd < len(s) {
		c := s[numEnd]
		if (c >= '0' && c <= '9') || c == '.' {
			numEnd++
			continue
		}
		break
	}
	if numEnd == 0 {
		return v
	}

	value, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return v
	}
	v.Value = value
	v.Unit = strings.TrimSpace(strings.ToLower(s[numEnd:]))
	return v
}

func canonicalQuantity(v models.QuantityVariant) (string, float64, bool) {
	conv, ok := unitConversions[v.Unit]
	if !ok {
		return "", 0, false
	}
	return conv.canonical, v.Value * conv.factor, true
}

func formatQuantity(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	return fmt.Sprintf("%g%s", value, unit)
}

// mergeVariants folds an incoming quantity variant into an item's
// variant list. Compatible units are summed; anything else stays as a
// separate selectable variant, so no phrasing is lost.
func mergeVariants(existing models.QuantityVariantList, incoming models.QuantityVariant) models.QuantityVariantList {
	inCanon, inValue, inOK := canonicalQuantity(incoming)
	if inOK {
		for i, v := range existing {
			canon, value, ok := canonicalQuantity(v)
			if ok && canon == inCanon {
				total := value + inValue
				existing[i] = models.QuantityVariant{
					Display: formatQuantity(total, canon),
					Value:   total,
					Unit:    canon,
				}
				return existing
			}
		}
	}
	for _, v := range existing {
		if v.Display == incoming.Display {
			return existing
		}
	}
	return append(existing, incoming)
}

// MergeShoppingItems merges new items into an existing list. Items with
// the same normalized grocery name become one line; a manual contributor
// keeps the merged line manual, since a user's explicit entry must not be
// silently overwritten by a generated one.
func MergeShoppingItems(existing, incoming []models.ShoppingItem) []models.ShoppingItem {
	merged := make([]models.ShoppingItem, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, item := range merged {
		key := item.NormalizedName
		if key == "" {
			key = NormalizeGroceryName(item.Name)
			merged[i].NormalizedName = key
		}
		index[key] = i
	}

	for _, item := range incoming {
		key := item.NormalizedName
		if key == "" {
			key = NormalizeGroceryName(item.Name)
		}

		i, ok := index[key]
		if !ok {
			item.NormalizedName = key
			merged = append(merged, item)
			index[key] = len(merged) - 1
			continue
		}

		for _, v := range item.Variants {
			merged[i].Variants = mergeVariants(merged[i].Variants, v)
		}
		if item.Source == models.ItemSourceManual {
			merged[i].Source = models.ItemSourceManual
		}
		if merged[i].Category == "" {
			merged[i].Category = item.Category
		}
	}
	return merged
}

// categoryKeywords assigns display categories by name.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"肉", []string{"肉", "ベーコン", "ハム", "ソーセージ"}},
	{"魚介", []string{"魚", "さけ", "鮭", "さば", "あじ", "えび", "いか", "たこ", "しらす"}},
	{"野菜", []string{"なす", "きゅうり", "にんじん", "だいこん", "キャベツ", "レタス", "トマト", "ねぎ", "たまねぎ", "ピーマン", "ほうれんそう", "もやし", "じゃがいも", "かぼちゃ"}},
	{"卵・乳", []string{"卵", "牛乳", "チーズ", "ヨーグルト", "バター"}},
	{"調味料", []string{"しょうゆ", "味噌", "みそ", "砂糖", "塩", "酢", "みりん", "油", "だし", "ソース"}},
}

func categorize(name string) string {
	n := NormalizeGroceryName(name)
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(n, kw) {
				return group.category
			}
		}
	}
	return "その他"
}

// ShoppingService regenerates a plan's shopping list from its accepted
// meals and merges the result with the user's manual entries.
type ShoppingService struct {
	db       *gorm.DB
	meals    IMealStore
	requests *RedisShoppingRequestStore
	logger   *zap.Logger
}

// NewShoppingService creates a new ShoppingService instance.
func NewShoppingService(db *gorm.DB, meals IMealStore, requests *RedisShoppingRequestStore, logger *zap.Logger) *ShoppingService {
	return &ShoppingService{db: db, meals: meals, requests: requests, logger: logger}
}

// RequestRegenerate registers a regeneration request and returns its id.
// The actual work runs asynchronously; callers poll GetRequest.
func (s *ShoppingService) RequestRegenerate(ctx context.Context, planID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	state := &ShoppingRequestState{ID: id, PlanID: planID, Status: "queued"}
	if err := s.requests.Save(ctx, state); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetRequest returns the current state of a regeneration request.
func (s *ShoppingService) GetRequest(ctx context.Context, id uuid.UUID) (*ShoppingRequestState, error) {
	return s.requests.Get(ctx, id)
}

// Regenerate derives generated items from a plan's meals, merges them
// with the list's current items, persists the result and completes the
// request state.
func (s *ShoppingService) Regenerate(ctx context.Context, requestID, userID, planID uuid.UUID) error {
	state := &ShoppingRequestState{ID: requestID, PlanID: planID, Status: "processing"}
	if err := s.requests.Save(ctx, state); err != nil {
		return err
	}

	fail := func(cause error) error {
		state.Status = "failed"
		state.Error = cause.Error()
		if err := s.requests.Save(ctx, state); err != nil && s.logger != nil {
			s.logger.Error("failed to persist shopping request failure", zap.Error(err))
		}
		return cause
	}

	meals, err := s.meals.GetMealsByPlan(ctx, userID, planID)
	if err != nil {
		return fail(fmt.Errorf("failed to load plan meals: %w", err))
	}

	generated := deriveItems(meals)

	var list models.ShoppingList
	err = s.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND plan_id = ?", userID, planID).
		First(&list).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		list = models.ShoppingList{ID: uuid.New(), UserID: userID, PlanID: planID}
		if err := s.db.WithContext(ctx).Create(&list).Error; err != nil {
			return fail(fmt.Errorf("failed to create shopping list: %w", err))
		}
	case err != nil:
		return fail(fmt.Errorf("failed to load shopping list: %w", err))
	}

	// Manual entries survive; previously generated lines are rebuilt.
	var manual []models.ShoppingItem
	for _, item := range list.Items {
		if item.Source == models.ItemSourceManual {
			manual = append(manual, item)
		}
	}
	merged := MergeShoppingItems(manual, generated)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", list.ID).Delete(&models.ShoppingItem{}).Error; err != nil {
			return err
		}
		for i := range merged {
			merged[i].ID = uuid.New()
			merged[i].ListID = list.ID
		}
		if len(merged) > 0 {
			return tx.Create(&merged).Error
		}
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("failed to save shopping list: %w", err))
	}

	state.Status = "completed"
	state.ItemCount = len(merged)
	state.ServingCount = len(meals)
	return s.requests.Save(ctx, state)
}

// deriveItems folds all meal ingredients of a plan into generated
// shopping items, summing grams per normalized name. Water-like lines
// never reach the list.
func deriveItems(meals []models.PlannedMeal) []models.ShoppingItem {
	type acc struct {
		name  string
		grams float64
	}
	sums := make(map[string]*acc)
	var order []string

	for _, meal := range meals {
		for _, dish := range meal.Dishes {
			for _, ing := range dish.Ingredients {
				if isWaterLike(NormalizeName(ing.Name)) {
					continue
				}
				key := NormalizeGroceryName(ing.Name)
				a, ok := sums[key]
				if !ok {
					a = &acc{name: displayGroceryName(ing.Name)}
					sums[key] = a
					order = append(order, key)
				}
				a.grams += ing.AmountG
			}
		}
	}

	items := make([]models.ShoppingItem, 0, len(order))
	for _, key := range order {
		a := sums[key]
		items = append(items, models.ShoppingItem{
			Name:           a.name,
			NormalizedName: key,
			Category:       categorize(a.name),
			Source:         models.ItemSourceGenerated,
			Variants: models.QuantityVariantList{
				{Display: formatQuantity(a.grams, "g"), Value: a.grams, Unit: "g"},
			},
		})
	}
	return items
}

// displayGroceryName keeps a human-facing name while aliases collapse the
// merge key: trimmed, with any trailing preparation note cut.
func displayGroceryName(name string) string {
	s := strings.TrimSpace(name)
	if i := strings.IndexFunc(s, func(r rune) bool { return r == '(' || r == '（' }); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimFunc(s, unicode.IsSpace)
	for _, a := range groceryAliases {
		if s == a.from {
			return a.to
		}
	}
	return s
}
