package domain

type ContextKey string

const UserContextKey ContextKey = "user"

// User is the authenticated principal reconstructed from JWT claims.
// Vendors carry their vendor id in the token so portal handlers never
// trust a path/body-supplied id.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"` // vendor, admin
	VendorID string `json:"vendorId,omitempty"`
}

const (
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)
