package service

import (
	"fmt"
	"strings"
)

// allergenSurfaceForms expands a declared allergen into the surface forms
// scanned for in generated text. The table is deliberately conservative:
// over-flagging is acceptable, a miss is not.
var allergenSurfaceForms = map[string][]string{
	"卵":    {"卵", "たまご", "玉子", "タマゴ", "卵黄", "卵白", "エッグ", "マヨネーズ", "egg", "eggs", "yolk"},
	"乳":    {"乳", "牛乳", "ミルク", "チーズ", "バター", "ヨーグルト", "生クリーム", "milk", "cheese", "butter", "cream", "yogurt"},
	"小麦":   {"小麦", "小麦粉", "薄力粉", "強力粉", "パン粉", "うどん", "パスタ", "wheat", "flour"},
	"そば":   {"そば", "蕎麦", "ソバ", "soba", "buckwheat"},
	"落花生":  {"落花生", "ピーナッツ", "ピーナツ", "peanut", "peanuts"},
	"えび":   {"えび", "海老", "エビ", "shrimp", "prawn"},
	"かに":   {"かに", "蟹", "カニ", "crab"},
	"大豆":   {"大豆", "豆腐", "納豆", "豆乳", "味噌", "みそ", "soy", "tofu"},
	"ごま":   {"ごま", "胡麻", "ゴマ", "sesame"},
	"egg":  {"egg", "eggs", "yolk", "卵", "たまご", "玉子", "卵黄", "卵白"},
	"milk": {"milk", "cheese", "butter", "cream", "牛乳", "ミルク", "チーズ", "バター"},
}

// noneSentinels are declared values meaning "no restrictions"; they are
// excluded from expansion.
var noneSentinels = map[string]struct{}{
	"none": {}, "なし": {}, "無し": {}, "特になし": {},
}

// AllergenHit records which declared allergen matched and via which
// surface forms, so a human-readable summary can be produced.
type AllergenHit struct {
	Allergen string
	Forms    []string
}

// Summary renders a hit like 卵(卵黄,卵白).
func (h AllergenHit) Summary() string {
	return fmt.Sprintf("%s(%s)", h.Allergen, strings.Join(h.Forms, ","))
}

// DetectAllergenHits scans candidate texts for the surface forms of each
// declared allergen. Texts are concatenated and normalized the same way
// lookup keys are, then each expanded needle is checked by substring
// containment. A declared allergen without a table entry is scanned as its
// own single surface form.
func DetectAllergenHits(declared []string, candidateTexts []string) []AllergenHit {
	haystack := NormalizeName(strings.Join(candidateTexts, " "))
	if haystack == "" {
		return nil
	}

	var hits []AllergenHit
	for _, allergen := range declared {
		key := strings.TrimSpace(allergen)
		if key == "" {
			continue
		}
		if _, ok := noneSentinels[strings.ToLower(key)]; ok {
			continue
		}

		forms, ok := allergenSurfaceForms[key]
		if !ok {
			forms = []string{key}
		}

		var matched []string
		seen := make(map[string]struct{})
		for _, form := range forms {
			needle := NormalizeName(form)
			if needle == "" {
				continue
			}
			if _, dup := seen[needle]; dup {
				continue
			}
			if strings.Contains(haystack, needle) {
				matched = append(matched, form)
				seen[needle] = struct{}{}
			}
		}
		if len(matched) > 0 {
			hits = append(hits, AllergenHit{Allergen: key, Forms: matched})
		}
	}
	return hits
}
