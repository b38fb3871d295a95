package domain

// Warehouse identifies where a medicine's stock is held.
type Warehouse string

const (
	MainWarehouse Warehouse = "Main Warehouse"
	StoreFront    Warehouse = "Store Front"
)

// IsValid reports whether w is a known warehouse.
func (w Warehouse) IsValid() bool {
	return w == MainWarehouse || w == StoreFront
}

// DateLayout is the calendar-date format used for expiry, order and
// delivery dates throughout the at-rest schema.
const DateLayout = "2006-01-02"

// Batch is a dated, priced sub-lot of a medicine. A batch is owned by
// exactly one medicine and its quantity changes only through ledger
// operations; it is never deleted, even at quantity zero.
type Batch struct {
	ID           string  `json:"id"`
	BatchNumber  string  `json:"batchNumber"`
	ExpiryDate   string  `json:"expiryDate"` // YYYY-MM-DD
	Quantity     int     `json:"quantity"`
	CostPrice    float64 `json:"costPrice"`
	SellingPrice float64 `json:"sellingPrice"`
}

// Medicine is the inventory aggregate. Stock is derived: it always equals
// the sum of the batch quantities and is recomputed, never edited directly.
type Medicine struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
	Warehouse    Warehouse `json:"warehouse"`
	Stock        int       `json:"stock"`
	Batches      []Batch   `json:"batches"`
}

// Clone returns a deep copy. Ledger operations take a snapshot and return
// a new value, so callers must never hand out an aliased batch slice.
func (m Medicine) Clone() Medicine {
	c := m
	c.Batches = make([]Batch, len(m.Batches))
	copy(c.Batches, m.Batches)
	return c
}

// RecomputeStock restores the stock invariant from the batch quantities.
func (m *Medicine) RecomputeStock() {
	total := 0
	for _, b := range m.Batches {
		total += b.Quantity
	}
	m.Stock = total
}

// Batch returns a pointer to the batch with the given id, or nil.
func (m *Medicine) Batch(batchID string) *Batch {
	for i := range m.Batches {
		if m.Batches[i].ID == batchID {
			return &m.Batches[i]
		}
	}
	return nil
}
