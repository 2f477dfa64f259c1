package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// aliasTable collapses known synonym spellings (mostly kanji forms the
// generation model likes to emit) to the reference store's canonical kana
// spelling. Applied after case/whitespace normalization, in order, so
// longer entries must come before any entry they contain (長葱 before 葱).
var aliasTable = []struct{ from, to string }{
	{"茄子", "なす"},
	{"胡瓜", "きゅうり"},
	{"人参", "にんじん"},
	{"大根", "だいこん"},
	{"南瓜", "かぼちゃ"},
	{"牛蒡", "ごぼう"},
	{"長葱", "ながねぎ"},
	{"玉葱", "たまねぎ"},
	{"葱", "ねぎ"},
	{"生姜", "しょうが"},
	{"蒟蒻", "こんにゃく"},
	{"椎茸", "しいたけ"},
	{"榎茸", "えのき"},
	{"法蓮草", "ほうれんそう"},
	{"ほうれん草", "ほうれんそう"},
	{"お米", "米"},
	{"御飯", "ごはん"},
}

// cookingWords are preparation phrases that appear inside generated
// ingredient names but never inside reference-store names.
var cookingWords = []string{
	"みじん切り", "千切り", "せん切り", "薄切り", "細切り", "乱切り", "小口切り",
	"角切り", "ざく切り", "輪切り", "いちょう切り", "短冊切り", "すりおろし",
	"すりおろした", "おろし", "刻み", "きざみ", "スライス", "カット",
	"ゆで", "茹で", "茹でた", "蒸し", "焼き用", "炒め用", "飾り用", "トッピング用",
	"仕上げ用", "お好みで", "適量",
	"minced", "sliced", "diced", "chopped", "grated", "shredded",
	"for garnish", "to taste",
}

var bracketReplacer = strings.NewReplacer(
	"（", "", "）", "",
	"(", "", ")", "",
	"「", "", "」", "",
	"『", "", "』", "",
	"【", "", "】", "",
	"・", "", "･", "",
)

// NormalizeName canonicalizes a food name for lookup: lower-case, all
// whitespace stripped, bracket and interpunct characters removed, alias
// table applied. Pure and total, so store keys and query keys stay
// symmetric.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = bracketReplacer.Replace(s)
	return applyAliases(s)
}

// stripParens removes parenthesized segments (both ASCII and full-width)
// and returns the outer text plus the collected inner segments.
func stripParens(s string) (outer string, inners []string) {
	var b strings.Builder
	var inner strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '（':
			depth++
			continue
		case ')', '）':
			if depth > 0 {
				depth--
				if depth == 0 {
					if t := strings.TrimSpace(inner.String()); t != "" {
						inners = append(inners, t)
					}
					inner.Reset()
				}
				continue
			}
		}
		if depth > 0 {
			inner.WriteRune(r)
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()), inners
}

// stripCookingWords removes preparation phrases from a name.
func stripCookingWords(s string) string {
	for _, w := range cookingWords {
		s = strings.ReplaceAll(s, w, "")
	}
	return strings.TrimSpace(s)
}

// looksLikeSynonym reports whether a parenthetical segment is a plain
// alternate name rather than a cooking instruction or amount.
func looksLikeSynonym(s string) bool {
	if utf8.RuneCountInString(s) > 10 {
		return false
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return false
		}
	}
	for _, w := range cookingWords {
		if strings.Contains(s, w) {
			return false
		}
	}
	return s != ""
}

// BuildSearchVariants expands a raw ingredient name into lookup variants,
// ordered by specificity and deduplicated. The list is never empty; the
// trimmed original is always present as a fallback.
func BuildSearchVariants(raw string) []string {
	original := strings.TrimSpace(raw)
	if original == "" {
		return []string{raw}
	}

	noParen, inners := stripParens(original)
	simplified := stripCookingWords(noParen)

	candidates := []string{original}
	if simplified != "" {
		candidates = append(candidates, simplified)
	}
	if noParen != "" {
		candidates = append(candidates, noParen)
	}
	for _, in := range inners {
		if looksLikeSynonym(in) {
			candidates = append(candidates, in)
		}
	}
	for _, c := range candidates {
		if a := applyAliases(c); a != c {
			candidates = append(candidates, a)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, c)
	}
	if len(variants) == 0 {
		variants = []string{original}
	}
	return variants
}

func applyAliases(s string) string {
	for _, a := range aliasTable {
		s = strings.ReplaceAll(s, a.from, a.to)
	}
	return s
}

// proteinKeywords are the surface forms of the protein families the
// reference store names with short common nouns.
var proteinKeywords = []string{"豚", "ぶた", "ポーク", "牛", "ビーフ", "鶏", "とり", "鳥", "チキン"}

func isKanaOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) || r == 'ー' {
			continue
		}
		return false
	}
	return true
}

// PickPrimaryVariant selects the variant used for fuzzy and semantic
// lookups. Reference names are usually short common-noun forms, so a short
// kana-only token wins, then the shortest variant naming a protein family,
// then the shortest variant overall.
func PickPrimaryVariant(variants []string) string {
	if len(variants) == 0 {
		return ""
	}

	best := ""
	for _, v := range variants {
		if isKanaOnly(v) && utf8.RuneCountInString(v) <= 10 {
			if best == "" || utf8.RuneCountInString(v) < utf8.RuneCountInString(best) {
				best = v
			}
		}
	}
	if best != "" {
		return best
	}

	for _, kw := range proteinKeywords {
		for _, v := range variants {
			if strings.Contains(v, kw) {
				if best == "" || utf8.RuneCountInString(v) < utf8.RuneCountInString(best) {
					best = v
				}
			}
		}
	}
	if best != "" {
		return best
	}

	best = variants[0]
	for _, v := range variants[1:] {
		if utf8.RuneCountInString(v) < utf8.RuneCountInString(best) {
			best = v
		}
	}
	return best
}
