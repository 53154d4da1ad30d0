package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant is a business (salon, clinic, restaurant) that takes bookings over WhatsApp
type Tenant struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name"`
	Timezone  string         `json:"timezone"` // IANA name, e.g. "Asia/Kolkata"
	Currency  string         `json:"currency"`
	Flow      datatypes.JSON `json:"flow,omitempty"` // custom flow definition, empty = default flow
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Location resolves the tenant timezone, falling back to the given default
func (t *Tenant) Location(fallback *time.Location) *time.Location {
	if t != nil && t.Timezone != "" {
		if loc, err := time.LoadLocation(t.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}
