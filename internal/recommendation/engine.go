package recommendation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/domain"
)

const (
	ReasonBoughtTogether = "often_bought_together"
	ReasonHealthyStock   = "healthy_stock"
	ReasonTimeSlot       = "time_slot_match"

	// maxPrompts is how many suggestions a cashier sees on one cart before
	// the engine goes quiet.
	maxPrompts = 4
)

type Request struct {
	Cart        []domain.CartLine
	PromptCount int
	At          time.Time
}

// History loads the catalog and learned pairs. It runs only on a cache miss.
type History func(ctx context.Context) (map[string]domain.InventoryItem, []domain.ItemPair, error)

type Engine struct {
	cache         cache.SuggestionCache
	cacheTTL      time.Duration
	minConfidence float64
}

func NewEngine(cacheStore cache.SuggestionCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSuggestionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Engine{
		cache:         cacheStore,
		cacheTTL:      cacheTTL,
		minConfidence: 0.35,
	}
}

// Suggest picks at most one item to offer alongside the cart.
func (e *Engine) Suggest(ctx context.Context, req Request, history History) (domain.SuggestionResponse, error) {
	counts := cartCounts(req.Cart)
	if len(counts) == 0 {
		return domain.SuggestionResponse{Policy: domain.SuggestionPolicy{Show: false, CooldownSeconds: 30}}, nil
	}
	if req.PromptCount >= maxPrompts {
		return domain.SuggestionResponse{Policy: domain.SuggestionPolicy{Show: false, CooldownSeconds: 90}}, nil
	}

	cacheKey := buildCacheKey(counts, req)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	items, pairs, err := history(ctx)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}

	pairSignal := make(map[string]float64)
	for _, pair := range pairs {
		if _, inCart := counts[pair.ItemID]; !inCart {
			continue
		}
		if _, inCart := counts[pair.TargetID]; inCart {
			continue
		}
		pairSignal[pair.TargetID] += pair.Affinity
	}

	candidates := make([]string, 0, len(pairSignal))
	for id := range pairSignal {
		candidates = append(candidates, id)
	}
	sort.Strings(candidates)

	hour := req.At.Hour()
	var best *domain.Suggestion
	for _, id := range candidates {
		item, ok := items[id]
		if !ok {
			continue
		}
		stock, tracked := available(item)
		if tracked && stock <= 0 {
			continue
		}

		pairAffinity := clamp(pairSignal[id]/float64(len(counts)), 0, 1)
		stockScore := 1.0
		if tracked {
			stockScore = clamp(float64(stock)/30.0, 0, 1)
		}
		timeRelevance := categoryHourRelevance(item.Category, hour)
		promptFatigue := clamp(float64(req.PromptCount)/maxPrompts, 0, 1)

		score :=
			0.55*pairAffinity +
				0.20*stockScore +
				0.20*timeRelevance -
				0.05*promptFatigue

		confidence := clamp(score, 0, 1)
		if confidence < e.minConfidence {
			continue
		}
		if best != nil && confidence <= best.Confidence {
			continue
		}
		best = &domain.Suggestion{
			ItemID:     item.ID,
			Name:       item.Name,
			Price:      item.Price,
			ReasonCode: deriveReason(pairAffinity, stockScore, timeRelevance),
			Confidence: confidence,
		}
	}

	resp := domain.SuggestionResponse{
		Policy: domain.SuggestionPolicy{Show: false, CooldownSeconds: 45},
	}
	if best != nil {
		best.Confidence = round2(best.Confidence)
		resp.Suggestion = best

		cooldown := 45
		if req.PromptCount > 1 {
			cooldown = 70
		}
		resp.Policy = domain.SuggestionPolicy{Show: true, CooldownSeconds: cooldown}
	}

	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp, nil
}

// Pairs learns item affinities from sales and orders. Affinity of (a, b) is
// the share of baskets holding a that also hold b. Pairs seen together fewer
// than minSupport times are dropped.
func Pairs(txs []domain.Transaction, minSupport int) []domain.ItemPair {
	if minSupport < 1 {
		minSupport = 1
	}
	baskets := make(map[string]int)
	together := make(map[[2]string]int)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeSale && tx.Type != domain.TxTypeOrder {
			continue
		}
		ids := basketItems(tx.Items)
		for _, a := range ids {
			baskets[a]++
			for _, b := range ids {
				if a != b {
					together[[2]string{a, b}]++
				}
			}
		}
	}

	pairs := make([]domain.ItemPair, 0, len(together))
	for key, n := range together {
		if n < minSupport {
			continue
		}
		pairs = append(pairs, domain.ItemPair{
			ItemID:   key[0],
			TargetID: key[1],
			Affinity: round2(float64(n) / float64(baskets[key[0]])),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ItemID != pairs[j].ItemID {
			return pairs[i].ItemID < pairs[j].ItemID
		}
		return pairs[i].TargetID < pairs[j].TargetID
	})
	return pairs
}

func basketItems(lines []domain.CartLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.ItemID == "" {
			continue
		}
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	return ids
}

// cartCounts folds variant lines of the same item together.
func cartCounts(lines []domain.CartLine) map[string]int {
	counts := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ItemID == "" || line.Qty < 1 {
			continue
		}
		counts[line.ItemID] += line.Qty
	}
	return counts
}

// available sums variant stock for items sold by variant.
func available(item domain.InventoryItem) (int, bool) {
	if !item.TrackStock {
		return 0, false
	}
	if len(item.Variants) == 0 {
		return item.Stock, true
	}
	total := 0
	for _, v := range item.Variants {
		total += v.Stock
	}
	return total, true
}

func deriveReason(pairAffinity float64, stockScore float64, timeRelevance float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}

	reasons := []reasonWeight{
		{code: ReasonBoughtTogether, value: pairAffinity},
		{code: ReasonHealthyStock, value: stockScore},
		{code: ReasonTimeSlot, value: timeRelevance},
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func categoryHourRelevance(category string, hour int) float64 {
	switch strings.ToLower(category) {
	case "beverage":
		if hour >= 7 && hour <= 11 {
			return 0.95
		}
		if hour >= 15 && hour <= 18 {
			return 0.85
		}
	case "bread", "dairy":
		if hour >= 6 && hour <= 11 {
			return 0.90
		}
		if hour >= 17 && hour <= 20 {
			return 0.70
		}
	case "pastry":
		if hour >= 7 && hour <= 12 {
			return 0.85
		}
		if hour >= 15 && hour <= 18 {
			return 0.80
		}
	case "cakes":
		if hour >= 16 && hour <= 21 {
			return 0.80
		}
	}
	return 0.55
}

func buildCacheKey(counts map[string]int, req Request) string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s:%d", id, counts[id]))
	}
	parts = append(parts, fmt.Sprintf("h:%d", req.At.Hour()))
	parts = append(parts, fmt.Sprintf("p:%d", req.PromptCount))

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "suggestion:" + hex.EncodeToString(hash[:])
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
