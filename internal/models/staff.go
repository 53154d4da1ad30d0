package models

import (
	"strings"
	"time"
)

// StaffMember can be assigned to appointments
type StaffMember struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	TenantID        string    `json:"tenant_id" gorm:"index"`
	Name            string    `json:"name"`
	Specializations string    `json:"specializations"` // ordered, comma separated
	IsActive        bool      `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName keeps the table name short
func (StaffMember) TableName() string { return "staff" }

// SpecializationList splits the stored specializations preserving their order
func (s *StaffMember) SpecializationList() []string {
	var out []string
	for _, part := range strings.Split(s.Specializations, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SpecializationsDisplay joins specializations for a chat message
func (s *StaffMember) SpecializationsDisplay() string {
	return strings.Join(s.SpecializationList(), ", ")
}
