package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAllergenHits(t *testing.T) {
	t.Run("expanded surface form matches", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"卵"}, []string{"親子丼", "卵黄のせごはん"})
		require.Len(t, hits, 1)
		assert.Equal(t, "卵", hits[0].Allergen)
		assert.Contains(t, hits[0].Forms, "卵黄")
	})

	t.Run("derived product matches", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"卵"}, []string{"ポテトサラダ", "マヨネーズ"})
		require.Len(t, hits, 1)
		assert.Contains(t, hits[0].Forms, "マヨネーズ")
	})

	t.Run("milk family catches cheese and butter", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"乳"}, []string{"チーズハンバーグ", "バター醤油"})
		require.Len(t, hits, 1)
		assert.ElementsMatch(t, []string{"チーズ", "バター"}, hits[0].Forms)
	})

	t.Run("no hit for clean menu", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"卵", "乳", "そば"}, []string{"豚汁", "白ごはん", "ほうれんそうのおひたし"})
		assert.Empty(t, hits)
	})

	t.Run("none sentinels declare nothing", func(t *testing.T) {
		for _, sentinel := range []string{"none", "なし", "無し", "特になし"} {
			hits := DetectAllergenHits([]string{sentinel}, []string{"卵焼き", "牛乳"})
			assert.Empty(t, hits, "sentinel %q must not expand", sentinel)
		}
	})

	t.Run("unknown allergen scanned as its own form", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"キウイ"}, []string{"キウイのサラダ"})
		require.Len(t, hits, 1)
		assert.Equal(t, []string{"キウイ"}, hits[0].Forms)
	})

	t.Run("case and spacing insensitive", func(t *testing.T) {
		hits := DetectAllergenHits([]string{"egg"}, []string{"Scrambled EGGS on toast"})
		require.Len(t, hits, 1)
	})

	t.Run("empty texts", func(t *testing.T) {
		assert.Empty(t, DetectAllergenHits([]string{"卵"}, nil))
	})
}

func TestAllergenHitSummary(t *testing.T) {
	h := AllergenHit{Allergen: "卵", Forms: []string{"卵黄", "卵白"}}
	assert.Equal(t, "卵(卵黄,卵白)", h.Summary())
}
