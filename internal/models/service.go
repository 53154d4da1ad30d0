package models

import (
	"strings"
	"time"
)

// Service is a bookable offering of a tenant
type Service struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	TenantID        string    `json:"tenant_id" gorm:"index"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Price           int       `json:"price"`            // display currency units
	DurationMinutes int       `json:"duration_minutes"` // 0 = derive from name
	IsActive        bool      `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultServiceDuration is used when neither the service nor the lookup table knows better
const DefaultServiceDuration = 60

// serviceDurations maps name keywords to durations in minutes. Checked in order.
var serviceDurations = []struct {
	keyword string
	minutes int
}{
	{"haircut", 30},
	{"hair cut", 30},
	{"trim", 20},
	{"shave", 20},
	{"beard", 20},
	{"color", 120},
	{"colour", 120},
	{"highlight", 120},
	{"manicure", 45},
	{"pedicure", 60},
	{"facial", 60},
	{"massage", 60},
	{"wax", 30},
	{"consultation", 30},
	{"checkup", 30},
	{"cleaning", 45},
}

// Duration returns the stored duration or one derived from the service name
func (s *Service) Duration() int {
	if s.DurationMinutes > 0 {
		return s.DurationMinutes
	}
	name := strings.ToLower(s.Name)
	for _, d := range serviceDurations {
		if strings.Contains(name, d.keyword) {
			return d.minutes
		}
	}
	return DefaultServiceDuration
}
