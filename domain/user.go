package domain

// Role is the set of pharmacy staff roles. The acting role is stamped on
// each sale for attribution.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RolePharmacist     Role = "Pharmacist"
	RoleSalesAssociate Role = "Sales Associate"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RolePharmacist, RoleSalesAssociate:
		return true
	}
	return false
}

// User is a staff account. The password is stored and compared in the
// clear; this mirrors the product's current behavior and is a known
// weakness, not something this layer attempts to fix.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
}
