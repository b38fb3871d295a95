// Package pharmacy sequences each user-initiated transaction: ledger
// computation against the in-memory snapshot, durable persistence, then
// republication of the new snapshot to subscribers.
package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pharmacare/m/domain"
	"pharmacare/m/internal/ledger"
	"pharmacare/m/internal/store"
)

// Snapshot is the full in-memory entity state published to consumers.
// Slices are deep copies; holders may not mutate shared state through it.
type Snapshot struct {
	Medicines      []domain.Medicine
	Sales          []domain.Sale
	Suppliers      []domain.Supplier
	PurchaseOrders []domain.PurchaseOrder
	Settings       domain.Settings
}

// Subscriber receives the republished snapshot after each committed
// transaction.
type Subscriber func(Snapshot)

// Service owns the entity snapshot and all multi-entity transactions.
// Reads of current state happen synchronously before persistence is
// issued, so each transaction sees a consistent pre-state; the snapshot
// is republished only after persistence resolves.
type Service struct {
	store *store.Store
	log   *zap.Logger

	mu    sync.RWMutex
	state Snapshot
	subs  []Subscriber
}

// New constructs a Service. Call Load before serving traffic.
func New(st *store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// Load reads every collection into memory and writes default settings on
// first run.
func (s *Service) Load(ctx context.Context) error {
	meds, err := s.store.GetMedicines(ctx)
	if err != nil {
		return err
	}
	sales, err := s.store.GetSales(ctx)
	if err != nil {
		return err
	}
	sups, err := s.store.GetSuppliers(ctx)
	if err != nil {
		return err
	}
	orders, err := s.store.GetPurchaseOrders(ctx)
	if err != nil {
		return err
	}
	cfg, err := s.store.GetSettings(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = domain.DefaultSettings()
		if err := s.store.UpdateSettings(ctx, cfg); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Snapshot{
		Medicines:      meds,
		Sales:          sales,
		Suppliers:      sups,
		PurchaseOrders: orders,
		Settings:       cfg,
	}
	s.mu.Unlock()

	s.log.Info("pharmacy state loaded",
		zap.Int("medicines", len(meds)),
		zap.Int("sales", len(sales)),
		zap.Int("suppliers", len(sups)),
		zap.Int("purchase_orders", len(orders)))
	return nil
}

// Subscribe registers fn to receive each republished snapshot.
func (s *Service) Subscribe(fn Subscriber) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// publish snapshots current state and fans it out. Called with the write
// lock held; subscriber invocation happens after it is released.
func (s *Service) publish() {
	snap := s.snapshotLocked()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	go func() {
		for _, fn := range subs {
			fn(snap)
		}
	}()
}

// Checkout turns the cart into an immutable sale, persists it, then
// deducts stock batch by batch and persists the changed medicines as one
// grouped write. The sale stays committed even if the stock update fails;
// that failure is returned alongside the recorded sale, never hidden.
func (s *Service) Checkout(ctx context.Context, cart []domain.CartItem, customerName string, actor domain.Role) (domain.Sale, error) {
	if len(cart) == 0 {
		return domain.Sale{}, domain.NewValidationError("cart is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line against the pre-state before anything is
	// written. Requests spanning several lines of one batch are checked
	// cumulatively.
	wanted := make(map[string]int)
	for _, item := range cart {
		if item.Quantity <= 0 {
			return domain.Sale{}, domain.NewValidationError("line for %q has non-positive quantity", item.Name)
		}
		med := s.findMedicineLocked(item.MedicineID)
		if med == nil {
			return domain.Sale{}, fmt.Errorf("medicine %s: %w", item.MedicineID, domain.ErrNotFound)
		}
		batch := med.Batch(item.BatchID)
		if batch == nil {
			return domain.Sale{}, fmt.Errorf("batch %s: %w", item.BatchID, domain.ErrNotFound)
		}
		wanted[item.BatchID] += item.Quantity
		if wanted[item.BatchID] > batch.Quantity {
			return domain.Sale{}, fmt.Errorf("batch %s has %d, cart wants %d: %w",
				item.BatchID, batch.Quantity, wanted[item.BatchID], domain.ErrInsufficientStock)
		}
	}

	total := 0.0
	items := make([]domain.CartItem, len(cart))
	copy(items, cart)
	for _, item := range items {
		total += item.LineTotal
	}
	sale := domain.Sale{
		ID:           domain.NewID("sale"),
		Date:         time.Now(),
		Items:        items,
		TotalAmount:  total,
		CustomerName: customerName,
		Pharmacist:   actor,
	}

	if err := s.store.AddSale(ctx, sale); err != nil {
		return domain.Sale{}, err
	}
	s.state.Sales = append(s.state.Sales, sale)

	// Deduct per line item on working copies; persist only medicines
	// that actually changed.
	working := make(map[string]domain.Medicine)
	var order []string
	for _, item := range cart {
		med, ok := working[item.MedicineID]
		if !ok {
			med = *s.findMedicineLocked(item.MedicineID)
			order = append(order, item.MedicineID)
		}
		updated, err := ledger.DeductForSale(med, item.BatchID, item.Quantity)
		if err != nil {
			s.publish()
			return sale, fmt.Errorf("sale %s recorded but stock deduction failed: %w", sale.ID, err)
		}
		working[item.MedicineID] = updated
	}

	changed := make([]domain.Medicine, 0, len(order))
	for _, id := range order {
		changed = append(changed, working[id])
	}
	if err := s.store.UpdateMedicines(ctx, changed); err != nil {
		s.publish()
		return sale, fmt.Errorf("sale %s recorded but stock update failed: %w", sale.ID, err)
	}
	for _, med := range changed {
		s.replaceMedicineLocked(med)
	}

	s.log.Info("sale completed",
		zap.String("sale_id", sale.ID),
		zap.Float64("total", sale.TotalAmount),
		zap.Int("lines", len(sale.Items)),
		zap.String("pharmacist", string(actor)))
	s.publish()
	return sale, nil
}

// CreatePurchaseOrder validates and persists a new pending order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, supplierID string, items []domain.PurchaseOrderItem) (domain.PurchaseOrder, error) {
	if strings.TrimSpace(supplierID) == "" {
		return domain.PurchaseOrder{}, domain.NewValidationError("supplier is required")
	}
	if len(items) == 0 {
		return domain.PurchaseOrder{}, domain.NewValidationError("order has no items")
	}
	total := 0.0
	for _, item := range items {
		if strings.TrimSpace(item.MedicineName) == "" {
			return domain.PurchaseOrder{}, domain.NewValidationError("order line is missing a medicine name")
		}
		if item.Quantity <= 0 {
			return domain.PurchaseOrder{}, domain.NewValidationError("order line for %q has non-positive quantity", item.MedicineName)
		}
		total += float64(item.Quantity) * item.CostPrice
	}

	order := domain.PurchaseOrder{
		ID:          domain.NewID("po"),
		SupplierID:  supplierID,
		OrderDate:   time.Now().Format(domain.DateLayout),
		Status:      domain.OrderPending,
		Items:       items,
		TotalAmount: total,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.AddPurchaseOrder(ctx, order); err != nil {
		return domain.PurchaseOrder{}, err
	}
	// Newest orders first, matching the listing the UI expects.
	s.state.PurchaseOrders = append([]domain.PurchaseOrder{order}, s.state.PurchaseOrders...)
	s.log.Info("purchase order created", zap.String("order_id", order.ID), zap.Float64("total", total))
	s.publish()
	return order, nil
}

// CompletePurchaseOrder transitions a pending order to Completed, stamps
// its delivery date, and receives every line into inventory. Calling it
// for a missing or already terminal order is a no-op, so a double
// completion never receives stock twice.
func (s *Service) CompletePurchaseOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.state.PurchaseOrders {
		if s.state.PurchaseOrders[i].ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	current := s.state.PurchaseOrders[idx]
	if !current.Status.CanTransitionTo(domain.OrderCompleted) {
		return nil
	}

	now := time.Now()
	updated := current.Clone()
	updated.Status = domain.OrderCompleted
	updated.DeliveryDate = now.Format(domain.DateLayout)
	if err := s.store.UpdatePurchaseOrder(ctx, updated); err != nil {
		return err
	}
	s.state.PurchaseOrders[idx] = updated

	supplierName := ""
	for _, sup := range s.state.Suppliers {
		if sup.ID == updated.SupplierID {
			supplierName = sup.Name
			break
		}
	}

	// Receive against a working index of cloned medicines keyed by
	// lower-cased name, so repeated names in one order accumulate.
	index := make(map[string]*domain.Medicine, len(s.state.Medicines))
	for _, med := range s.state.Medicines {
		clone := med.Clone()
		index[strings.ToLower(med.Name)] = &clone
	}

	var created []domain.Medicine
	touched := make(map[string]bool)
	for _, item := range updated.Items {
		med, isNew := ledger.ReceiveOrderItem(index, item, updated, supplierName, now)
		if isNew {
			created = append(created, *med)
		} else {
			touched[med.ID] = true
		}
	}
	// Re-read created medicines from the index so lines that accumulated
	// onto a medicine created earlier in the same order are reflected.
	for i := range created {
		created[i] = *index[strings.ToLower(created[i].Name)]
	}

	var changed []domain.Medicine
	for _, med := range s.state.Medicines {
		if touched[med.ID] {
			changed = append(changed, *index[strings.ToLower(med.Name)])
		}
	}

	for _, med := range created {
		if err := s.store.AddMedicine(ctx, med); err != nil {
			return fmt.Errorf("order %s completed but medicine create failed: %w", orderID, err)
		}
	}
	if err := s.store.UpdateMedicines(ctx, changed); err != nil {
		return fmt.Errorf("order %s completed but stock receipt failed: %w", orderID, err)
	}

	for _, med := range changed {
		s.replaceMedicineLocked(med)
	}
	s.state.Medicines = append(s.state.Medicines, created...)

	s.log.Info("purchase order completed",
		zap.String("order_id", orderID),
		zap.Int("lines", len(updated.Items)),
		zap.Int("new_medicines", len(created)))
	s.publish()
	return nil
}

// CancelPurchaseOrder moves a pending order to Cancelled. No inventory
// effect; terminal and missing orders are a no-op.
func (s *Service) CancelPurchaseOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.PurchaseOrders {
		if s.state.PurchaseOrders[i].ID != orderID {
			continue
		}
		current := s.state.PurchaseOrders[i]
		if !current.Status.CanTransitionTo(domain.OrderCancelled) {
			return nil
		}
		updated := current.Clone()
		updated.Status = domain.OrderCancelled
		if err := s.store.UpdatePurchaseOrder(ctx, updated); err != nil {
			return err
		}
		s.state.PurchaseOrders[i] = updated
		s.log.Info("purchase order cancelled", zap.String("order_id", orderID))
		s.publish()
		return nil
	}
	return nil
}

// AdjustStock applies a signed manual adjustment to one batch and
// persists the medicine.
func (s *Service) AdjustStock(ctx context.Context, medicineID, batchID string, delta int) (domain.Medicine, error) {
	if delta == 0 {
		return domain.Medicine{}, domain.NewValidationError("adjustment delta must not be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findMedicineLocked(medicineID)
	if med == nil {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", medicineID, domain.ErrNotFound)
	}
	updated, err := ledger.AdjustStock(*med, batchID, delta)
	if err != nil {
		return domain.Medicine{}, err
	}
	if err := s.store.UpdateMedicine(ctx, updated); err != nil {
		return domain.Medicine{}, err
	}
	s.replaceMedicineLocked(updated)
	s.log.Info("stock adjusted",
		zap.String("medicine_id", medicineID),
		zap.String("batch_id", batchID),
		zap.Int("delta", delta),
		zap.Int("stock", updated.Stock))
	s.publish()
	return updated.Clone(), nil
}

// AddMedicine inserts a new medicine. Batch ids are minted when absent and
// stock is always derived from the batches.
func (s *Service) AddMedicine(ctx context.Context, med domain.Medicine) (domain.Medicine, error) {
	if strings.TrimSpace(med.Name) == "" {
		return domain.Medicine{}, domain.NewValidationError("medicine name is required")
	}
	if med.Warehouse == "" {
		med.Warehouse = domain.MainWarehouse
	}
	if !med.Warehouse.IsValid() {
		return domain.Medicine{}, domain.NewValidationError("unknown warehouse %q", med.Warehouse)
	}
	med = med.Clone()
	med.ID = domain.NewID("med")
	for i := range med.Batches {
		if med.Batches[i].Quantity < 0 {
			return domain.Medicine{}, domain.NewValidationError("batch %q has negative quantity", med.Batches[i].BatchNumber)
		}
		if med.Batches[i].ID == "" {
			med.Batches[i].ID = domain.NewChildID("b")
		}
	}
	med.RecomputeStock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.AddMedicine(ctx, med); err != nil {
		return domain.Medicine{}, err
	}
	s.state.Medicines = append(s.state.Medicines, med)
	s.publish()
	return med.Clone(), nil
}

// UpdateMedicine replaces an existing medicine record, recomputing the
// derived stock before persisting.
func (s *Service) UpdateMedicine(ctx context.Context, med domain.Medicine) (domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findMedicineLocked(med.ID) == nil {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", med.ID, domain.ErrNotFound)
	}
	med = med.Clone()
	med.RecomputeStock()
	if err := s.store.UpdateMedicine(ctx, med); err != nil {
		return domain.Medicine{}, err
	}
	s.replaceMedicineLocked(med)
	s.publish()
	return med.Clone(), nil
}

// AddSupplier inserts a new supplier.
func (s *Service) AddSupplier(ctx context.Context, sup domain.Supplier) (domain.Supplier, error) {
	if strings.TrimSpace(sup.Name) == "" {
		return domain.Supplier{}, domain.NewValidationError("supplier name is required")
	}
	sup.ID = domain.NewID("sup")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.AddSupplier(ctx, sup); err != nil {
		return domain.Supplier{}, err
	}
	s.state.Suppliers = append(s.state.Suppliers, sup)
	s.publish()
	return sup, nil
}

// UpdateSettings replaces the singleton pharmacy profile.
func (s *Service) UpdateSettings(ctx context.Context, cfg domain.Settings) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return domain.NewValidationError("pharmacy name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.UpdateSettings(ctx, cfg); err != nil {
		return err
	}
	s.state.Settings = cfg
	s.publish()
	return nil
}

// Read accessors. All return deep copies of the current snapshot.

func (s *Service) Medicines() []domain.Medicine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMedicines(s.state.Medicines)
}

func (s *Service) Sales() []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSales(s.state.Sales)
}

func (s *Service) Suppliers() []domain.Supplier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Supplier, len(s.state.Suppliers))
	copy(out, s.state.Suppliers)
	return out
}

func (s *Service) PurchaseOrders() []domain.PurchaseOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PurchaseOrder, len(s.state.PurchaseOrders))
	for i, po := range s.state.PurchaseOrders {
		out[i] = po.Clone()
	}
	return out
}

func (s *Service) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings
}

// CurrentSnapshot returns a deep copy of the whole entity state.
func (s *Service) CurrentSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	snap := Snapshot{
		Medicines:      cloneMedicines(s.state.Medicines),
		Sales:          cloneSales(s.state.Sales),
		Suppliers:      make([]domain.Supplier, len(s.state.Suppliers)),
		PurchaseOrders: make([]domain.PurchaseOrder, len(s.state.PurchaseOrders)),
		Settings:       s.state.Settings,
	}
	copy(snap.Suppliers, s.state.Suppliers)
	for i, po := range s.state.PurchaseOrders {
		snap.PurchaseOrders[i] = po.Clone()
	}
	return snap
}

func (s *Service) findMedicineLocked(id string) *domain.Medicine {
	for i := range s.state.Medicines {
		if s.state.Medicines[i].ID == id {
			return &s.state.Medicines[i]
		}
	}
	return nil
}

func (s *Service) replaceMedicineLocked(med domain.Medicine) {
	for i := range s.state.Medicines {
		if s.state.Medicines[i].ID == med.ID {
			s.state.Medicines[i] = med
			return
		}
	}
	s.state.Medicines = append(s.state.Medicines, med)
}

func cloneMedicines(meds []domain.Medicine) []domain.Medicine {
	out := make([]domain.Medicine, len(meds))
	for i, med := range meds {
		out[i] = med.Clone()
	}
	return out
}

func cloneSales(sales []domain.Sale) []domain.Sale {
	out := make([]domain.Sale, len(sales))
	for i, sale := range sales {
		out[i] = sale
		out[i].Items = make([]domain.CartItem, len(sale.Items))
		copy(out[i].Items, sale.Items)
	}
	return out
}
