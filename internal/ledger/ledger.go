// Package ledger owns every valid stock-quantity transition. Operations
// are pure: they take a medicine snapshot and return a new value with the
// stock invariant (stock == sum of batch quantities) restored, leaving
// persistence to the caller.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"pharmacare/m/domain"
)

// purchaseMarkup is the fixed selling-price markup applied to batches
// received from a purchase order.
const purchaseMarkup = 1.25

// DeductForSale returns med with the named batch reduced by qty and stock
// recomputed. qty must be positive and within the batch's on-hand
// quantity; the quantity check happens against the snapshot the caller
// passes in, which under single-session use is the cart-add pre-state.
func DeductForSale(med domain.Medicine, batchID string, qty int) (domain.Medicine, error) {
	if qty <= 0 {
		return domain.Medicine{}, domain.NewValidationError("sale quantity must be positive, got %d", qty)
	}
	out := med.Clone()
	batch := out.Batch(batchID)
	if batch == nil {
		return domain.Medicine{}, fmt.Errorf("batch %s of medicine %s: %w", batchID, med.ID, domain.ErrNotFound)
	}
	if qty > batch.Quantity {
		return domain.Medicine{}, fmt.Errorf("batch %s has %d, requested %d: %w",
			batchID, batch.Quantity, qty, domain.ErrInsufficientStock)
	}
	batch.Quantity -= qty
	out.RecomputeStock()
	return out, nil
}

// AdjustStock returns med with the named batch changed by delta and stock
// recomputed. A decrease past zero clamps the batch at zero rather than
// failing; the excess is discarded silently, which matches the product's
// current behavior.
func AdjustStock(med domain.Medicine, batchID string, delta int) (domain.Medicine, error) {
	out := med.Clone()
	batch := out.Batch(batchID)
	if batch == nil {
		return domain.Medicine{}, fmt.Errorf("batch %s of medicine %s: %w", batchID, med.ID, domain.ErrNotFound)
	}
	batch.Quantity += delta
	if batch.Quantity < 0 {
		batch.Quantity = 0
	}
	out.RecomputeStock()
	return out, nil
}

// ReceiveOrderItem converts one purchase-order line into inventory against
// the working index, which is keyed by lower-cased medicine name and
// mutated in place so repeated names within one order accumulate on the
// same record. A matching medicine gains a synthesized batch; otherwise a
// new medicine is created and returned with created == true.
//
// The synthesized batch carries the order-derived batch number, an expiry
// exactly one year from now, and a selling price of costPrice * 1.25.
func ReceiveOrderItem(index map[string]*domain.Medicine, item domain.PurchaseOrderItem, order domain.PurchaseOrder, supplierName string, now time.Time) (*domain.Medicine, bool) {
	batch := domain.Batch{
		ID:           domain.NewChildID("b"),
		BatchNumber:  "PO-" + tail(order.ID, 4),
		ExpiryDate:   now.AddDate(1, 0, 0).Format(domain.DateLayout),
		Quantity:     item.Quantity,
		CostPrice:    item.CostPrice,
		SellingPrice: item.CostPrice * purchaseMarkup,
	}

	key := strings.ToLower(item.MedicineName)
	if med, ok := index[key]; ok {
		med.Batches = append(med.Batches, batch)
		med.RecomputeStock()
		return med, false
	}

	manufacturer := supplierName
	if manufacturer == "" {
		manufacturer = "Unknown"
	}
	med := &domain.Medicine{
		ID:           domain.NewChildID("med"),
		Name:         item.MedicineName,
		Manufacturer: manufacturer,
		Warehouse:    domain.MainWarehouse,
		Batches:      []domain.Batch{batch},
	}
	med.RecomputeStock()
	index[key] = med
	return med, true
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
