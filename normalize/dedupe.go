package normalize

import (
	"math"
	"sort"

	"github.com/use-agent/pricehound/models"
)

// similarityThreshold is the title-similarity score above which two
// records are the same listing.
const similarityThreshold = 0.8

// dedupe collapses near-duplicate listings, keeping the
// highest-confidence, lowest-price representative of each cluster.
// Candidates are ranked confidence-first (price ascending as the
// tie-break) and accepted greedily: a record similar to ANY already
// accepted title is discarded. Greedy clustering is deliberately
// non-transitive — with A~B and B~C but A!~C, all three can still
// collapse into A's cluster because B and C are each compared against
// the accepted set, not against each other.
func dedupe(products []models.Product) []models.Product {
	if len(products) <= 1 {
		return products
	}

	candidates := make([]models.Product, len(products))
	copy(candidates, products)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return priceKey(candidates[i].Price) < priceKey(candidates[j].Price)
	})

	accepted := candidates[:0]
	var titles []string
	for _, candidate := range candidates {
		if isDuplicate(candidate.Title, titles) {
			continue
		}
		accepted = append(accepted, candidate)
		titles = append(titles, candidate.Title)
	}
	return accepted
}

func isDuplicate(title string, accepted []string) bool {
	for _, existing := range accepted {
		if TitleSimilarity(title, existing) > similarityThreshold {
			return true
		}
	}
	return false
}

// sortProducts orders the final output cheapest-first; records without
// a price sort last, confidence breaks ties.
func sortProducts(products []models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		pi, pj := priceKey(products[i].Price), priceKey(products[j].Price)
		if pi != pj {
			return pi < pj
		}
		return products[i].Confidence > products[j].Confidence
	})
}

func priceKey(price *float64) float64 {
	if price == nil {
		return math.Inf(1)
	}
	return *price
}
