package quotes

import "math"

// round2 rounds to cents. Totals are stored to two decimal places the same
// way the NUMERIC(12,2) columns hold them.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal computes quantity times unit price for one item.
func LineTotal(quantity, unitPrice float64) float64 {
	return round2(quantity * unitPrice)
}

// ComputeTotal derives the quote total from its parts. The stored
// total_amount is never trusted independently; every read recomputes it from
// the item lines, service rates and transport cost.
func ComputeTotal(items []QuoteItem, services []QuoteService, transportCost float64) float64 {
	var total float64
	for _, it := range items {
		total += LineTotal(it.Quantity, it.UnitPrice)
	}
	for _, sv := range services {
		total += sv.Rate
	}
	total += transportCost
	return round2(total)
}
