package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kondateapp/backend/internal/models"
)

// KeywordFamily is one gating rule: when a query names any surface form of
// the family, a candidate must name one too. Trigram and embedding
// similarity alone conflate nutritionally distinct foods (different meats,
// oil vs sauce), so this is a cheap, explainable guardrail on top.
type KeywordFamily struct {
	Name  string
	Forms []string
}

// DefaultKeywordFamilies covers the protein and oil families. The table is
// a heuristic safety net, configurable rather than hard-coded; coverage is
// deliberately not expanded beyond these families.
func DefaultKeywordFamilies() []KeywordFamily {
	return []KeywordFamily{
		{Name: "pork", Forms: []string{"豚", "ぶた", "ポーク", "pork"}},
		{Name: "beef", Forms: []string{"牛", "ビーフ", "beef"}},
		{Name: "chicken", Forms: []string{"鶏", "とり", "鳥", "チキン", "chicken"}},
		{Name: "oil", Forms: []string{"油", "オイル", "oil"}},
	}
}

// ResolverConfig carries the cascade's tuning knobs. The thresholds are
// operational defaults, not derived values; change them via configuration.
type ResolverConfig struct {
	FuzzyThreshold    float64
	SemanticThreshold float64
	FuzzyLimit        int
	SemanticLimit     int
	LookupConcurrency int
	Families          []KeywordFamily
}

// DefaultResolverConfig returns the stock cascade settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		FuzzyThreshold:    0.15,
		SemanticThreshold: 0.72,
		FuzzyLimit:        10,
		SemanticLimit:     15,
		LookupConcurrency: 8,
		Families:          DefaultKeywordFamilies(),
	}
}

// EmbeddingClient is the external embedding capability: one fixed-dimension
// vector per input string, order-preserving.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error)
}

// IngredientResolver matches free-text ingredient names against the
// reference store with an exact → fuzzy → semantic cascade.
type IngredientResolver struct {
	store    ReferenceStore
	embedder EmbeddingClient
	cfg      ResolverConfig
	logger   *zap.Logger
}

// NewIngredientResolver creates a new IngredientResolver instance.
func NewIngredientResolver(store ReferenceStore, embedder EmbeddingClient, cfg ResolverConfig, logger *zap.Logger) *IngredientResolver {
	if cfg.FuzzyLimit <= 0 {
		cfg.FuzzyLimit = 10
	}
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = 15
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 8
	}
	return &IngredientResolver{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// waterNames are normalized names excluded from resolution: they carry no
// nutrients and resolving them wastes lookup budget.
var waterNames = map[string]struct{}{
	"水": {}, "お湯": {}, "湯": {}, "熱湯": {},
	"water": {}, "hotwater": {},
}

func isWaterLike(normalized string) bool {
	if _, ok := waterNames[normalized]; ok {
		return true
	}
	return strings.HasPrefix(normalized, "water") || strings.HasPrefix(normalized, "水")
}

// passesConstraints applies keyword gating between a query name and a
// candidate name. Both sides are checked in normalized form.
func (r *IngredientResolver) passesConstraints(queryName, candidateName string) bool {
	q := NormalizeName(queryName)
	c := NormalizeName(candidateName)
	for _, fam := range r.cfg.Families {
		if !containsAnyForm(q, fam.Forms) {
			continue
		}
		if !containsAnyForm(c, fam.Forms) {
			return false
		}
	}
	return true
}

func containsAnyForm(s string, forms []string) bool {
	for _, f := range forms {
		if strings.Contains(s, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// ResolveAll resolves a batch of ingredient queries. Individual
// ingredients never fail: an unmatched query yields a nil reference and
// lowers the mapping rate. Store and embedding errors fail the batch,
// since partial nutrient data is worse than none.
func (r *IngredientResolver) ResolveAll(ctx context.Context, queries []IngredientQuery) ([]IngredientMatch, error) {
	matches := make([]IngredientMatch, len(queries))
	variants := make([][]string, len(queries))
	pending := make([]int, 0, len(queries))

	keySet := make(map[string]struct{})
	for i, q := range queries {
		matches[i] = IngredientMatch{Query: q}
		if isWaterLike(NormalizeName(q.Name)) {
			matches[i].Skip = true
			continue
		}
		variants[i] = BuildSearchVariants(q.Name)
		pending = append(pending, i)
		for _, v := range variants[i] {
			keySet[NormalizeName(v)] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return matches, nil
	}

	// Tier 1: one exact-lookup round trip for every variant of every query.
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	exact, err := r.store.FindExactByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	stillPending := pending[:0]
	for _, i := range pending {
		if food, ok := firstExactHit(exact, variants[i]); ok {
			matches[i].Reference = food
			matches[i].Similarity = 1.0
			matches[i].Method = MatchMethodExact
			continue
		}
		stillPending = append(stillPending, i)
	}
	pending = stillPending
	if len(pending) == 0 {
		return matches, nil
	}

	// Tier 2: trigram search per unresolved query, parallel across
	// ingredients since these are independent reads.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.LookupConcurrency)
	for _, i := range pending {
		i := i
		g.Go(func() error {
			primary := PickPrimaryVariant(variants[i])
			candidates, err := r.store.SearchSimilar(gctx, NormalizeName(primary), r.cfg.FuzzyThreshold, r.cfg.FuzzyLimit)
			if err != nil {
				return err
			}
			if best, ok := r.bestGatedCandidate(queries[i].Name, candidates, r.cfg.FuzzyThreshold); ok {
				matches[i].Reference = &best.Food
				matches[i].Similarity = best.Similarity
				matches[i].Method = MatchMethodFuzzy
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stillPending = pending[:0]
	for _, i := range pending {
		if matches[i].Reference == nil {
			stillPending = append(stillPending, i)
		}
	}
	pending = stillPending
	if len(pending) == 0 || r.embedder == nil {
		return matches, nil
	}

	// Tier 3: batch-embed the remaining primaries, then nearest-neighbor
	// search under the stricter semantic threshold.
	texts := make([]string, len(pending))
	for n, i := range pending {
		texts[n] = PickPrimaryVariant(variants[i])
	}
	embeddings, err := r.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(pending) {
		return nil, ErrEmbeddingCountMismatch
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.LookupConcurrency)
	for n, i := range pending {
		n, i := n, i
		g.Go(func() error {
			candidates, err := r.store.SearchByEmbedding(gctx, embeddings[n].Vector(), r.cfg.SemanticLimit)
			if err != nil {
				return err
			}
			if best, ok := r.bestGatedCandidate(queries[i].Name, candidates, r.cfg.SemanticThreshold); ok {
				matches[i].Reference = &best.Food
				matches[i].Similarity = best.Similarity
				matches[i].Method = MatchMethodSemantic
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.logger != nil {
		unresolved := 0
		for _, m := range matches {
			if !m.Skip && m.Reference == nil {
				unresolved++
			}
		}
		if unresolved > 0 {
			r.logger.Debug("ingredients left unresolved after cascade",
				zap.Int("unresolved", unresolved),
				zap.Int("total", len(queries)))
		}
	}
	return matches, nil
}

// firstExactHit returns the reference food for the first variant whose
// normalized key is present, honoring variant priority order.
func firstExactHit(exact map[string]models.ReferenceFood, variants []string) (*models.ReferenceFood, bool) {
	for _, v := range variants {
		if food, ok := exact[NormalizeName(v)]; ok {
			f := food
			return &f, true
		}
	}
	return nil, false
}

// bestGatedCandidate returns the highest-similarity candidate that clears
// both the keyword gate and the minimum similarity.
func (r *IngredientResolver) bestGatedCandidate(queryName string, candidates []ReferenceCandidate, minSimilarity float64) (ReferenceCandidate, bool) {
	var best ReferenceCandidate
	found := false
	for _, c := range candidates {
		if c.Similarity < minSimilarity {
			continue
		}
		if !r.passesConstraints(queryName, c.Food.Name) {
			continue
		}
		if !found || c.Similarity > best.Similarity {
			best = c
			found = true
		}
	}
	return best, found
}
