package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

// ProductSales is the trailing 30-day sales volume of one product.
type ProductSales struct {
	ProductCode string  `json:"code" db:"producto_codigo"`
	UnitsSold   float64 `json:"units_sold_trailing_30d" db:"unidades_30d"`
}

// StoreSales is ProductSales observed in one store.
type StoreSales struct {
	StoreID     string  `json:"store_id" db:"tienda_id"`
	ProductCode string  `json:"code" db:"producto_codigo"`
	UnitsSold   float64 `json:"units_sold_trailing_30d" db:"unidades_30d"`
}

// RankedProduct is one row of a classification run.
type RankedProduct struct {
	ProductCode string          `json:"code"`
	UnitsSold   float64         `json:"units_sold_trailing_30d"`
	Rank        int             `json:"rank"`
	Class       domain.ABCClass `json:"class"`
}

// Scope selects whether products are ranked across the whole network or per store.
type Scope string

const (
	ScopeNetwork Scope = "network"
	ScopeStore   Scope = "store"
)

// ParseScope accepts "network" or "store" (case-insensitive).
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeNetwork, "":
		return ScopeNetwork, nil
	case ScopeStore:
		return ScopeStore, nil
	default:
		return "", fmt.Errorf("unknown classification scope %q", s)
	}
}

// NetworkKey is the scope key used for network-wide classification results.
const NetworkKey = ""

// Rank orders products by units sold descending, breaking ties by product code
// ascending, and assigns each its class from the thresholds. Repeated codes are
// summed before ranking. Thresholds are checked before anything is ranked.
func Rank(products []ProductSales, t domain.ABCThresholds) ([]RankedProduct, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(products))
	for _, p := range products {
		totals[p.ProductCode] += p.UnitsSold
	}

	ranked := make([]RankedProduct, 0, len(totals))
	for code, units := range totals {
		ranked = append(ranked, RankedProduct{ProductCode: code, UnitsSold: units})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].UnitsSold != ranked[j].UnitsSold {
			return ranked[i].UnitsSold > ranked[j].UnitsSold
		}
		return ranked[i].ProductCode < ranked[j].ProductCode
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Class = classForRank(ranked[i].Rank, t)
	}

	return ranked, nil
}

// Classify maps each product code to its class. It is a pure function of its inputs.
func Classify(products []ProductSales, t domain.ABCThresholds) (map[string]domain.ABCClass, error) {
	ranked, err := Rank(products, t)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.ABCClass, len(ranked))
	for _, r := range ranked {
		out[r.ProductCode] = r.Class
	}
	return out, nil
}

// ClassifyScoped classifies store-level sales. ScopeNetwork sums units per product
// across stores and returns a single entry under NetworkKey; ScopeStore returns one
// classification per store ID.
func ClassifyScoped(records []StoreSales, t domain.ABCThresholds, scope Scope) (map[string]map[string]domain.ABCClass, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	groups := make(map[string][]ProductSales)
	switch scope {
	case ScopeNetwork:
		all := make([]ProductSales, 0, len(records))
		for _, r := range records {
			all = append(all, ProductSales{ProductCode: r.ProductCode, UnitsSold: r.UnitsSold})
		}
		groups[NetworkKey] = all
	case ScopeStore:
		for _, r := range records {
			groups[r.StoreID] = append(groups[r.StoreID], ProductSales{ProductCode: r.ProductCode, UnitsSold: r.UnitsSold})
		}
	default:
		return nil, fmt.Errorf("unknown classification scope %q", scope)
	}

	out := make(map[string]map[string]domain.ABCClass, len(groups))
	for key, products := range groups {
		classes, err := Classify(products, t)
		if err != nil {
			return nil, err
		}
		out[key] = classes
	}
	return out, nil
}

func classForRank(rank int, t domain.ABCThresholds) domain.ABCClass {
	switch {
	case rank <= t.A:
		return domain.ClassA
	case rank <= t.B:
		return domain.ClassB
	case rank <= t.C:
		return domain.ClassC
	default:
		return domain.ClassD
	}
}
