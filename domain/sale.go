package domain

import "time"

// CartItem is a point-in-time copy of batch identity and pricing. Sales
// keep these copies rather than batch references so later batch edits do
// not alter past receipts.
type CartItem struct {
	MedicineID  string  `json:"medicineId"`
	BatchID     string  `json:"batchId"`
	Name        string  `json:"name"`
	BatchNumber string  `json:"batchNumber"`
	ExpiryDate  string  `json:"expiryDate"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"price"`
	LineTotal   float64 `json:"total"`
}

// Sale is an immutable historical record of one checkout.
type Sale struct {
	ID           string     `json:"id"`
	Date         time.Time  `json:"date"`
	Items        []CartItem `json:"items"`
	TotalAmount  float64    `json:"totalAmount"`
	CustomerName string     `json:"customerName"`
	Pharmacist   Role       `json:"pharmacist"`
}
