package models

import (
	"time"

	"gorm.io/datatypes"
)

// Booking is the durable projection of a completed WhatsApp conversation
type Booking struct {
	ID             string `json:"id" gorm:"primaryKey"`
	TenantID       string `json:"tenant_id" gorm:"index"`
	ConversationID string `json:"conversation_id" gorm:"index"`
	ServiceID      string `json:"service_id"`
	StaffID        string `json:"staff_id"`

	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone" gorm:"index"`

	// Pricing
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`

	ScheduledAt time.Time `json:"scheduled_at" gorm:"index"`
	Status      string    `json:"status"` // "pending", "confirmed", "cancelled"
	Notes       string    `json:"notes"`

	// One booking per conversation flow; duplicate confirms hit this index.
	// Rows created outside the chat flow leave it empty.
	IdempotencyKey string `json:"-" gorm:"index:idx_bookings_idempotency_key,unique,where:idempotency_key <> ''"`

	ReminderSentAt *time.Time `json:"reminder_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingStatus constants
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"

	PaymentStatusPending = "pending"
)

// ConversationRecord is the audit row written next to every booking
type ConversationRecord struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"index"`
	CustomerPhone string         `json:"customer_phone"`
	FlowID        string         `json:"flow_id"`
	ServiceID     string         `json:"service_id"`
	StaffID       string         `json:"staff_id"`
	Amount        int            `json:"amount"`
	Status        string         `json:"status"`
	Snapshot      datatypes.JSON `json:"snapshot"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (ConversationRecord) TableName() string { return "conversations" }
