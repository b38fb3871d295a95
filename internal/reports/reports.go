// Package reports holds the read-only projections over the entity
// snapshot. Nothing here mutates or persists; every report is recomputed
// on demand from whatever state the caller passes in.
package reports

import (
	"math"
	"sort"
	"strings"
	"time"

	"pharmacare/m/domain"
)

// LowStockThreshold is the fixed stock level below which a medicine is
// flagged for reordering.
const LowStockThreshold = 10

// ExpiryWindowDays is the look-ahead window for the expiring-soon report.
const ExpiryWindowDays = 60

// LowStock returns medicines with stock below the threshold.
func LowStock(meds []domain.Medicine) []domain.Medicine {
	var out []domain.Medicine
	for _, med := range meds {
		if med.Stock < LowStockThreshold {
			out = append(out, med)
		}
	}
	return out
}

// DaysUntil counts calendar days from now until the expiry date, rounding
// partial days up. Unparseable dates count as already expired.
func DaysUntil(expiryDate string, now time.Time) int {
	expiry, err := time.Parse(domain.DateLayout, expiryDate)
	if err != nil {
		return 0
	}
	diff := expiry.Sub(now).Hours() / 24
	return int(math.Ceil(diff))
}

// BatchRow is one batch in an expiry report, joined with its medicine.
type BatchRow struct {
	MedicineID   string       `json:"medicineId"`
	MedicineName string       `json:"medicineName"`
	Batch        domain.Batch `json:"batch"`
	DaysToExpire int          `json:"daysToExpire"`
}

// ExpiringSoon returns batches that expire within the window but have not
// expired yet, soonest first.
func ExpiringSoon(meds []domain.Medicine, now time.Time) []BatchRow {
	return expiryRows(meds, now, func(days int) bool {
		return days > 0 && days <= ExpiryWindowDays
	})
}

// Expired returns batches whose expiry date has passed, oldest first.
func Expired(meds []domain.Medicine, now time.Time) []BatchRow {
	return expiryRows(meds, now, func(days int) bool {
		return days <= 0
	})
}

func expiryRows(meds []domain.Medicine, now time.Time, keep func(days int) bool) []BatchRow {
	var rows []BatchRow
	for _, med := range meds {
		for _, batch := range med.Batches {
			days := DaysUntil(batch.ExpiryDate, now)
			if keep(days) {
				rows = append(rows, BatchRow{
					MedicineID:   med.ID,
					MedicineName: med.Name,
					Batch:        batch,
					DaysToExpire: days,
				})
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Batch.ExpiryDate < rows[j].Batch.ExpiryDate
	})
	return rows
}

// ValuationFilter narrows the stock valuation to a warehouse and/or a
// case-insensitive name search. Zero values mean no filtering.
type ValuationFilter struct {
	Warehouse domain.Warehouse
	Search    string
}

// StockValuation sums quantity * costPrice across every batch of the
// medicines matching the filter.
func StockValuation(meds []domain.Medicine, filter ValuationFilter) float64 {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	total := 0.0
	for _, med := range meds {
		if filter.Warehouse != "" && med.Warehouse != filter.Warehouse {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(med.Name), search) {
			continue
		}
		for _, batch := range med.Batches {
			total += float64(batch.Quantity) * batch.CostPrice
		}
	}
	return total
}

// TotalSales sums the recorded sale totals.
func TotalSales(sales []domain.Sale) float64 {
	total := 0.0
	for _, sale := range sales {
		total += sale.TotalAmount
	}
	return total
}
