package pharmacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmacare/m/domain"
	"pharmacare/m/internal/database"
	"pharmacare/m/internal/migrations"
	"pharmacare/m/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(db))

	st := store.New(db)
	svc := New(st, zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))
	return svc, st
}

func seedParacetamol(t *testing.T, svc *Service) domain.Medicine {
	t.Helper()
	med, err := svc.AddMedicine(context.Background(), domain.Medicine{
		Name:         "Paracetamol",
		Manufacturer: "Acme Labs",
		Warehouse:    domain.MainWarehouse,
		Batches: []domain.Batch{
			{BatchNumber: "A100", ExpiryDate: "2027-06-30", Quantity: 100, CostPrice: 3.50, SellingPrice: 5.00},
		},
	})
	require.NoError(t, err)
	return med
}

func cartFor(med domain.Medicine, qty int) []domain.CartItem {
	batch := med.Batches[0]
	return []domain.CartItem{{
		MedicineID:  med.ID,
		BatchID:     batch.ID,
		Name:        med.Name,
		BatchNumber: batch.BatchNumber,
		ExpiryDate:  batch.ExpiryDate,
		Quantity:    qty,
		UnitPrice:   batch.SellingPrice,
		LineTotal:   float64(qty) * batch.SellingPrice,
	}}
}

func TestLoadWritesDefaultSettingsOnFirstRun(t *testing.T) {
	svc, st := newTestService(t)

	assert.Equal(t, domain.DefaultSettings(), svc.Settings())

	stored, err := st.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), stored)
}

func TestCheckoutDeductsStockAndRecordsSale(t *testing.T) {
	svc, st := newTestService(t)
	med := seedParacetamol(t, svc)

	sale, err := svc.Checkout(context.Background(), cartFor(med, 30), "Walk-in", domain.RolePharmacist)
	require.NoError(t, err)

	assert.InDelta(t, 150.00, sale.TotalAmount, 1e-9)
	assert.Equal(t, domain.RolePharmacist, sale.Pharmacist)
	assert.Equal(t, "Walk-in", sale.CustomerName)

	meds := svc.Medicines()
	require.Len(t, meds, 1)
	assert.Equal(t, 70, meds[0].Stock)
	assert.Equal(t, 70, meds[0].Batches[0].Quantity)

	// Persisted state matches the snapshot.
	storedMeds, err := st.GetMedicines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70, storedMeds[0].Stock)

	storedSales, err := st.GetSales(context.Background())
	require.NoError(t, err)
	require.Len(t, storedSales, 1)
	assert.Equal(t, sale.ID, storedSales[0].ID)
	assert.Equal(t, sale.Items, storedSales[0].Items)
}

func TestCheckoutEmptyCartWritesNothing(t *testing.T) {
	svc, st := newTestService(t)
	seedParacetamol(t, svc)

	_, err := svc.Checkout(context.Background(), nil, "Walk-in", domain.RoleAdmin)
	assert.True(t, domain.IsValidation(err))

	sales, err := st.GetSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCheckoutInsufficientStockWritesNothing(t *testing.T) {
	svc, st := newTestService(t)
	med := seedParacetamol(t, svc)

	_, err := svc.Checkout(context.Background(), cartFor(med, 101), "Walk-in", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	sales, err := st.GetSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sales)

	// Stock untouched.
	assert.Equal(t, 100, svc.Medicines()[0].Stock)
}

func TestCheckoutValidatesCumulativeBatchQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	med := seedParacetamol(t, svc)

	// Two lines on the same batch that only exceed on-hand together.
	cart := append(cartFor(med, 60), cartFor(med, 60)...)
	_, err := svc.Checkout(context.Background(), cart, "Walk-in", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestCheckoutMultipleLinesSameMedicine(t *testing.T) {
	svc, _ := newTestService(t)
	med := seedParacetamol(t, svc)

	cart := append(cartFor(med, 10), cartFor(med, 20)...)
	sale, err := svc.Checkout(context.Background(), cart, "Walk-in", domain.RoleSalesAssociate)
	require.NoError(t, err)

	assert.InDelta(t, 150.00, sale.TotalAmount, 1e-9)
	assert.Equal(t, 70, svc.Medicines()[0].Stock)
}

func TestCheckoutUnknownMedicine(t *testing.T) {
	svc, _ := newTestService(t)
	med := seedParacetamol(t, svc)

	cart := cartFor(med, 1)
	cart[0].MedicineID = "med-missing"
	_, err := svc.Checkout(context.Background(), cart, "Walk-in", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustStockClampsAndPersists(t *testing.T) {
	svc, st := newTestService(t)
	med, err := svc.AddMedicine(context.Background(), domain.Medicine{
		Name:      "Cough Syrup",
		Warehouse: domain.StoreFront,
		Batches:   []domain.Batch{{BatchNumber: "C1", ExpiryDate: "2026-12-31", Quantity: 20, CostPrice: 2.00, SellingPrice: 3.00}},
	})
	require.NoError(t, err)

	updated, err := svc.AdjustStock(context.Background(), med.ID, med.Batches[0].ID, -500)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Stock)
	assert.Equal(t, 0, updated.Batches[0].Quantity)

	stored, err := st.GetMedicines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stored[0].Stock)
}

func TestAdjustStockValidation(t *testing.T) {
	svc, _ := newTestService(t)
	med := seedParacetamol(t, svc)

	_, err := svc.AdjustStock(context.Background(), med.ID, med.Batches[0].ID, 0)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.AdjustStock(context.Background(), "med-missing", "b-1", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreatePurchaseOrder(context.Background(), "", []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00},
	})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreatePurchaseOrder(context.Background(), "sup-1", nil)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreatePurchaseOrder(context.Background(), "sup-1", []domain.PurchaseOrderItem{
		{MedicineName: "", Quantity: 50, CostPrice: 2.00},
	})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreatePurchaseOrder(context.Background(), "sup-1", []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 0, CostPrice: 2.00},
	})
	assert.True(t, domain.IsValidation(err))
}

func TestCreatePurchaseOrderTotals(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.CreatePurchaseOrder(context.Background(), "sup-1", []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00},
		{MedicineName: "Aspirin", Quantity: 10, CostPrice: 1.50},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.InDelta(t, 115.00, order.TotalAmount, 1e-9)
	assert.Equal(t, time.Now().Format(domain.DateLayout), order.OrderDate)
}

func TestCompletePurchaseOrderCreatesMedicine(t *testing.T) {
	svc, st := newTestService(t)

	sup, err := svc.AddSupplier(context.Background(), domain.Supplier{Name: "HealthCorp"})
	require.NoError(t, err)

	order, err := svc.CreatePurchaseOrder(context.Background(), sup.ID, []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), order.ID))

	orders := svc.PurchaseOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderCompleted, orders[0].Status)
	assert.Equal(t, time.Now().Format(domain.DateLayout), orders[0].DeliveryDate)

	meds := svc.Medicines()
	require.Len(t, meds, 1)
	assert.Equal(t, "Ibuprofen", meds[0].Name)
	assert.Equal(t, "HealthCorp", meds[0].Manufacturer)
	assert.Equal(t, 50, meds[0].Stock)
	require.Len(t, meds[0].Batches, 1)
	assert.InDelta(t, 2.50, meds[0].Batches[0].SellingPrice, 1e-9)

	stored, err := st.GetMedicines(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 50, stored[0].Stock)
}

func TestCompletePurchaseOrderIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	sup, err := svc.AddSupplier(context.Background(), domain.Supplier{Name: "HealthCorp"})
	require.NoError(t, err)
	order, err := svc.CreatePurchaseOrder(context.Background(), sup.ID, []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), order.ID))
	after := svc.Medicines()

	// Completing again neither errors nor receives stock twice.
	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), order.ID))
	assert.Equal(t, after, svc.Medicines())
	require.Len(t, svc.Medicines()[0].Batches, 1)
}

func TestCompletePurchaseOrderMergesIntoExisting(t *testing.T) {
	svc, _ := newTestService(t)
	seedParacetamol(t, svc)

	sup, err := svc.AddSupplier(context.Background(), domain.Supplier{Name: "HealthCorp"})
	require.NoError(t, err)
	order, err := svc.CreatePurchaseOrder(context.Background(), sup.ID, []domain.PurchaseOrderItem{
		{MedicineName: "PARACETAMOL", Quantity: 40, CostPrice: 3.00},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), order.ID))

	meds := svc.Medicines()
	require.Len(t, meds, 1)
	assert.Len(t, meds[0].Batches, 2)
	assert.Equal(t, 140, meds[0].Stock)
}

func TestCompletePurchaseOrderMissingIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), "po-missing"))
}

func TestCancelPurchaseOrder(t *testing.T) {
	svc, _ := newTestService(t)

	sup, err := svc.AddSupplier(context.Background(), domain.Supplier{Name: "HealthCorp"})
	require.NoError(t, err)
	order, err := svc.CreatePurchaseOrder(context.Background(), sup.ID, []domain.PurchaseOrderItem{
		{MedicineName: "Ibuprofen", Quantity: 50, CostPrice: 2.00},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelPurchaseOrder(context.Background(), order.ID))
	assert.Equal(t, domain.OrderCancelled, svc.PurchaseOrders()[0].Status)
	// Cancellation has no inventory effect.
	assert.Empty(t, svc.Medicines())

	// Cancelled is terminal; completing afterwards receives nothing.
	require.NoError(t, svc.CompletePurchaseOrder(context.Background(), order.ID))
	assert.Equal(t, domain.OrderCancelled, svc.PurchaseOrders()[0].Status)
	assert.Empty(t, svc.Medicines())
}

func TestSnapshotRepublishedToSubscribers(t *testing.T) {
	svc, _ := newTestService(t)

	got := make(chan Snapshot, 4)
	svc.Subscribe(func(s Snapshot) { got <- s })

	med := seedParacetamol(t, svc)

	select {
	case snap := <-got:
		require.Len(t, snap.Medicines, 1)
		assert.Equal(t, med.ID, snap.Medicines[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published after AddMedicine")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	svc, _ := newTestService(t)
	seedParacetamol(t, svc)

	meds := svc.Medicines()
	meds[0].Batches[0].Quantity = 1

	assert.Equal(t, 100, svc.Medicines()[0].Batches[0].Quantity)
}

func TestUpdateMedicineRecomputesStock(t *testing.T) {
	svc, _ := newTestService(t)
	med := seedParacetamol(t, svc)

	med.Stock = 9999 // stale derived field supplied by a client
	med.Batches[0].Quantity = 80
	updated, err := svc.UpdateMedicine(context.Background(), med)
	require.NoError(t, err)
	assert.Equal(t, 80, updated.Stock)

	_, err = svc.UpdateMedicine(context.Background(), domain.Medicine{ID: "med-missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateSettings(t *testing.T) {
	svc, st := newTestService(t)

	cfg := svc.Settings()
	cfg.Name = "Corner Pharmacy"
	require.NoError(t, svc.UpdateSettings(context.Background(), cfg))
	assert.Equal(t, "Corner Pharmacy", svc.Settings().Name)

	stored, err := st.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Corner Pharmacy", stored.Name)

	err = svc.UpdateSettings(context.Background(), domain.Settings{})
	assert.True(t, domain.IsValidation(err))
}
