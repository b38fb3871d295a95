package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacare/m/domain"
)

func paracetamol() domain.Medicine {
	med := domain.Medicine{
		ID:           "med-1",
		Name:         "Paracetamol",
		Manufacturer: "Acme Labs",
		Warehouse:    domain.MainWarehouse,
		Batches: []domain.Batch{
			{ID: "b-1", BatchNumber: "A100", ExpiryDate: "2027-06-30", Quantity: 100, CostPrice: 3.50, SellingPrice: 5.00},
		},
	}
	med.RecomputeStock()
	return med
}

func TestDeductForSale(t *testing.T) {
	med := paracetamol()

	updated, err := DeductForSale(med, "b-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 70, updated.Batches[0].Quantity)
	assert.Equal(t, 70, updated.Stock)
	// Input snapshot untouched.
	assert.Equal(t, 100, med.Batches[0].Quantity)
	assert.Equal(t, 100, med.Stock)
}

func TestDeductForSaleInsufficientStock(t *testing.T) {
	med := paracetamol()

	_, err := DeductForSale(med, "b-1", 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestDeductForSaleUnknownBatch(t *testing.T) {
	med := paracetamol()

	_, err := DeductForSale(med, "b-missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeductForSaleNonPositiveQuantity(t *testing.T) {
	med := paracetamol()

	_, err := DeductForSale(med, "b-1", 0)
	assert.True(t, domain.IsValidation(err))

	_, err = DeductForSale(med, "b-1", -3)
	assert.True(t, domain.IsValidation(err))
}

func TestAdjustStockIncrease(t *testing.T) {
	med := paracetamol()

	updated, err := AdjustStock(med, "b-1", 25)
	require.NoError(t, err)
	assert.Equal(t, 125, updated.Batches[0].Quantity)
	assert.Equal(t, 125, updated.Stock)
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	med := paracetamol()
	med.Batches[0].Quantity = 20
	med.RecomputeStock()

	// Removing far more than on hand clamps to zero instead of failing.
	updated, err := AdjustStock(med, "b-1", -500)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Batches[0].Quantity)
	assert.Equal(t, 0, updated.Stock)
}

func TestAdjustStockUnknownBatch(t *testing.T) {
	med := paracetamol()

	_, err := AdjustStock(med, "b-missing", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReceiveOrderItemCreatesMedicine(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	order := domain.PurchaseOrder{
		ID:         "po-1741234567890",
		SupplierID: "sup-1",
		Status:     domain.OrderPending,
	}
	item := domain.PurchaseOrderItem{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00}

	index := map[string]*domain.Medicine{}
	med, created := ReceiveOrderItem(index, item, order, "HealthCorp", now)

	require.True(t, created)
	assert.Equal(t, "Ibuprofen", med.Name)
	assert.Equal(t, "HealthCorp", med.Manufacturer)
	assert.Equal(t, domain.MainWarehouse, med.Warehouse)
	assert.Equal(t, 50, med.Stock)

	require.Len(t, med.Batches, 1)
	batch := med.Batches[0]
	assert.Equal(t, 50, batch.Quantity)
	assert.InDelta(t, 2.50, batch.SellingPrice, 1e-9)
	assert.Equal(t, "2027-03-15", batch.ExpiryDate)
	assert.Equal(t, "PO-7890", batch.BatchNumber)
}

func TestReceiveOrderItemUnknownSupplier(t *testing.T) {
	order := domain.PurchaseOrder{ID: "po-1", Status: domain.OrderPending}
	item := domain.PurchaseOrderItem{MedicineName: "Aspirin", Quantity: 10, CostPrice: 1.00}

	index := map[string]*domain.Medicine{}
	med, created := ReceiveOrderItem(index, item, order, "", time.Now())

	require.True(t, created)
	assert.Equal(t, "Unknown", med.Manufacturer)
}

func TestReceiveOrderItemMergesCaseInsensitively(t *testing.T) {
	existing := paracetamol()
	index := map[string]*domain.Medicine{"paracetamol": &existing}

	order := domain.PurchaseOrder{ID: "po-2", Status: domain.OrderPending}
	item := domain.PurchaseOrderItem{MedicineName: "PARACETAMOL", Quantity: 40, CostPrice: 3.00}

	med, created := ReceiveOrderItem(index, item, order, "Acme Labs", time.Now())

	assert.False(t, created)
	assert.Equal(t, "med-1", med.ID)
	assert.Len(t, med.Batches, 2)
	assert.Equal(t, 140, med.Stock)
}

func TestReceiveOrderItemAccumulatesDuplicateLines(t *testing.T) {
	order := domain.PurchaseOrder{ID: "po-3", Status: domain.OrderPending}
	index := map[string]*domain.Medicine{}
	now := time.Now()

	first := domain.PurchaseOrderItem{MedicineName: "Cetirizine", Quantity: 20, CostPrice: 1.50}
	second := domain.PurchaseOrderItem{MedicineName: "cetirizine", Quantity: 30, CostPrice: 1.60}

	_, created := ReceiveOrderItem(index, first, order, "HealthCorp", now)
	require.True(t, created)
	med, created := ReceiveOrderItem(index, second, order, "HealthCorp", now)
	require.False(t, created)

	// Both lines landed on the same working record.
	assert.Len(t, med.Batches, 2)
	assert.Equal(t, 50, med.Stock)
	assert.Len(t, index, 1)
}

func TestStockInvariantAfterEveryOperation(t *testing.T) {
	med := domain.Medicine{
		ID:   "med-2",
		Name: "Amoxicillin",
		Batches: []domain.Batch{
			{ID: "b-1", Quantity: 10},
			{ID: "b-2", Quantity: 25},
		},
	}
	med.RecomputeStock()

	sum := func(m domain.Medicine) int {
		total := 0
		for _, b := range m.Batches {
			total += b.Quantity
		}
		return total
	}

	afterSale, err := DeductForSale(med, "b-2", 5)
	require.NoError(t, err)
	assert.Equal(t, sum(afterSale), afterSale.Stock)

	afterAdjust, err := AdjustStock(afterSale, "b-1", -100)
	require.NoError(t, err)
	assert.Equal(t, sum(afterAdjust), afterAdjust.Stock)
	for _, b := range afterAdjust.Batches {
		assert.GreaterOrEqual(t, b.Quantity, 0)
	}
}
