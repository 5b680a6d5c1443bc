package model

import "time"

type VendorType string

const (
	VendorShipping  VendorType = "shipping"
	VendorLogistics VendorType = "logistics"
	VendorFreight   VendorType = "freight"
	VendorCourier   VendorType = "courier"
	VendorWarehouse VendorType = "warehouse"
)

func (t VendorType) Valid() bool {
	switch t {
	case VendorShipping, VendorLogistics, VendorFreight, VendorCourier, VendorWarehouse:
		return true
	}
	return false
}

type Vendor struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Company     string     `json:"company,omitempty"`
	Address     string     `json:"address,omitempty"`
	VendorType  VendorType `json:"vendorType"`
	Rating      *int       `json:"rating,omitempty"`
	Description string     `json:"description,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// VendorPatch carries a partial update; nil fields are left unchanged.
type VendorPatch struct {
	Name        *string     `json:"name"`
	Email       *string     `json:"email"`
	Phone       *string     `json:"phone"`
	Company     *string     `json:"company"`
	Address     *string     `json:"address"`
	VendorType  *VendorType `json:"vendorType"`
	Rating      *int        `json:"rating"`
	Description *string     `json:"description"`
	Active      *bool       `json:"active"`
}

func (p VendorPatch) Apply(v *Vendor) {
	if p.Name != nil {
		v.Name = *p.Name
	}
	if p.Email != nil {
		v.Email = *p.Email
	}
	if p.Phone != nil {
		v.Phone = *p.Phone
	}
	if p.Company != nil {
		v.Company = *p.Company
	}
	if p.Address != nil {
		v.Address = *p.Address
	}
	if p.VendorType != nil {
		v.VendorType = *p.VendorType
	}
	if p.Rating != nil {
		v.Rating = p.Rating
	}
	if p.Description != nil {
		v.Description = *p.Description
	}
	if p.Active != nil {
		v.Active = *p.Active
	}
}
