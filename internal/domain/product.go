package domain

import (
	"context"
	"time"
)

// Product is the slim listing view the billing core needs: the public
// track endpoint must resolve the owning vendor server-side rather
// than trust a client-supplied vendor id.
type Product struct {
	ID              string    `json:"id"` // UUID
	VendorID        string    `json:"vendorId"`
	MasterProductID *string   `json:"masterProductId"`
	Name            string    `json:"name"`
	Status          string    `json:"status"` // active, inactive
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
