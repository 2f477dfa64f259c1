package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondateapp/backend/internal/models"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input string
		value float64
		unit  string
	}{
		{"300g", 300, "g"},
		{"1.5kg", 1.5, "kg"},
		{"500ml", 500, "ml"},
		{"2L", 2, "l"},
		{"2個", 2, "個"},
		{"1本", 1, "本"},
		{"3 枚", 3, "枚"},
		{"適量", 0, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := ParseQuantity(tt.input)
			assert.Equal(t, tt.input, v.Display)
			assert.InDelta(t, tt.value, v.Value, 1e-9)
			assert.Equal(t, tt.unit, v.Unit)
		})
	}
}

func TestNormalizeGroceryName(t *testing.T) {
	assert.Equal(t, NormalizeGroceryName("卵"), NormalizeGroceryName("玉子"))
	assert.Equal(t, NormalizeGroceryName("しょうゆ"), NormalizeGroceryName("お醤油"))
	assert.Equal(t, NormalizeGroceryName("豚ひき肉"), NormalizeGroceryName("豚ミンチ"))
	assert.NotEqual(t, NormalizeGroceryName("卵"), NormalizeGroceryName("牛乳"))
}

func TestMergeShoppingItems(t *testing.T) {
	t.Run("compatible units summed", func(t *testing.T) {
		existing := []models.ShoppingItem{{
			Name:   "豚ひき肉",
			Source: models.ItemSourceGenerated,
			Variants: models.QuantityVariantList{
				{Display: "300g", Value: 300, Unit: "g"},
			},
		}}
		incoming := []models.ShoppingItem{{
			Name:   "豚ミンチ",
			Source: models.ItemSourceGenerated,
			Variants: models.QuantityVariantList{
				{Display: "0.5kg", Value: 0.5, Unit: "kg"},
			},
		}}
		merged := MergeShoppingItems(existing, incoming)

		require.Len(t, merged, 1)
		require.Len(t, merged[0].Variants, 1)
		assert.Equal(t, "800g", merged[0].Variants[0].Display)
		assert.InDelta(t, 800, merged[0].Variants[0].Value, 1e-9)
	})

	t.Run("incompatible units kept as variants", func(t *testing.T) {
		existing := []models.ShoppingItem{{
			Name:   "牛乳",
			Source: models.ItemSourceManual,
			Variants: models.QuantityVariantList{
				{Display: "1パック", Value: 1, Unit: "パック"},
			},
		}}
		incoming := []models.ShoppingItem{{
			Name:   "牛乳",
			Source: models.ItemSourceGenerated,
			Variants: models.QuantityVariantList{
				{Display: "500ml", Value: 500, Unit: "ml"},
			},
		}}
		merged := MergeShoppingItems(existing, incoming)

		require.Len(t, merged, 1)
		require.Len(t, merged[0].Variants, 2)
		assert.Equal(t, "1パック", merged[0].Variants[0].Display)
		assert.Equal(t, "500ml", merged[0].Variants[1].Display)
		assert.Equal(t, models.ItemSourceManual, merged[0].Source, "a manual entry stays manual across merges")
	})

	t.Run("manual incoming flips generated line", func(t *testing.T) {
		existing := []models.ShoppingItem{{
			Name:   "にんじん",
			Source: models.ItemSourceGenerated,
		}}
		incoming := []models.ShoppingItem{{
			Name:   "にんじん",
			Source: models.ItemSourceManual,
		}}
		merged := MergeShoppingItems(existing, incoming)
		require.Len(t, merged, 1)
		assert.Equal(t, models.ItemSourceManual, merged[0].Source)
	})

	t.Run("distinct items appended", func(t *testing.T) {
		existing := []models.ShoppingItem{{Name: "卵"}}
		incoming := []models.ShoppingItem{{Name: "牛乳"}}
		merged := MergeShoppingItems(existing, incoming)
		assert.Len(t, merged, 2)
	})

	t.Run("duplicate displays not repeated", func(t *testing.T) {
		existing := []models.ShoppingItem{{
			Name:     "豆腐",
			Variants: models.QuantityVariantList{{Display: "1丁", Value: 1, Unit: "丁"}},
		}}
		incoming := []models.ShoppingItem{{
			Name:     "お豆腐",
			Variants: models.QuantityVariantList{{Display: "1丁", Value: 1, Unit: "丁"}},
		}}
		merged := MergeShoppingItems(existing, incoming)
		require.Len(t, merged, 1)
		assert.Len(t, merged[0].Variants, 1)
	})
}

func TestDeriveItems(t *testing.T) {
	jobID := uuid.New()
	meals := []models.PlannedMeal{
		{
			JobID:    &jobID,
			MealType: models.MealTypeDinner,
			Dishes: models.DishList{{
				Name: "麻婆茄子",
				Role: models.DishRoleMain,
				Ingredients: []models.DishIngredient{
					{Name: "豚ひき肉", AmountG: 150},
					{Name: "なす", AmountG: 200},
					{Name: "水", AmountG: 100},
				},
			}},
		},
		{
			JobID:    &jobID,
			MealType: models.MealTypeLunch,
			Dishes: models.DishList{{
				Name: "そぼろ丼",
				Role: models.DishRoleMain,
				Ingredients: []models.DishIngredient{
					{Name: "豚ミンチ", AmountG: 100},
				},
			}},
		},
	}

	items := deriveItems(meals)
	require.Len(t, items, 2, "water is dropped, mince aliases merge")

	byName := map[string]models.ShoppingItem{}
	for _, it := range items {
		byName[it.NormalizedName] = it
	}

	pork, ok := byName[NormalizeGroceryName("豚ひき肉")]
	require.True(t, ok)
	require.Len(t, pork.Variants, 1)
	assert.Equal(t, "250g", pork.Variants[0].Display)
	assert.Equal(t, models.ItemSourceGenerated, pork.Source)
	assert.Equal(t, "肉", pork.Category)

	nasu, ok := byName[NormalizeGroceryName("なす")]
	require.True(t, ok)
	assert.Equal(t, "200g", nasu.Variants[0].Display)
	assert.Equal(t, "野菜", nasu.Category)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"豚こま肉", "肉"},
		{"鮭の切り身", "魚介"},
		{"きゅうり", "野菜"},
		{"牛乳", "卵・乳"},
		{"お醤油", "調味料"},
		{"ラップ", "その他"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorize(tt.name))
		})
	}
}
