package domain

// OrderStatus is the purchase-order state machine. Pending orders may be
// completed (which triggers inventory receipt) or cancelled (no inventory
// effect). Completed and Cancelled are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderCompleted OrderStatus = "Completed"
	OrderCancelled OrderStatus = "Cancelled"
)

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s != OrderPending {
		return false
	}
	return target == OrderCompleted || target == OrderCancelled
}

// PurchaseOrderItem is one order line. The medicine name is free text and
// is matched case-insensitively against the catalog on receipt.
type PurchaseOrderItem struct {
	MedicineName string  `json:"medicineName"`
	Quantity     int     `json:"quantity"`
	CostPrice    float64 `json:"costPrice"`
}

// PurchaseOrder references its supplier by id only; the supplier record is
// looked up, never embedded.
type PurchaseOrder struct {
	ID           string              `json:"id"`
	SupplierID   string              `json:"supplierId"`
	OrderDate    string              `json:"orderDate"`              // YYYY-MM-DD
	DeliveryDate string              `json:"deliveryDate,omitempty"` // set on completion
	Status       OrderStatus         `json:"status"`
	Items        []PurchaseOrderItem `json:"items"`
	TotalAmount  float64             `json:"totalAmount"`
}

// Clone returns a deep copy of the order.
func (o PurchaseOrder) Clone() PurchaseOrder {
	c := o
	c.Items = make([]PurchaseOrderItem, len(o.Items))
	copy(c.Items, o.Items)
	return c
}
