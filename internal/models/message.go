package models

// MessageText carries the body of a text message
type MessageText struct {
	Body string `json:"body"`
}

// CustomerMessage is the part of an inbound WhatsApp message the booking flow needs
type CustomerMessage struct {
	Text      MessageText `json:"text"`
	From      string      `json:"from"`
	ID        string      `json:"id"`
	Type      string      `json:"type"` // only "text" is handled
	Timestamp string      `json:"timestamp"`

	// ProfileName is the WhatsApp display name when the provider sends one
	ProfileName string `json:"profile_name,omitempty"`
}

// MessageTypeText is the only message type the flow reacts to
const MessageTypeText = "text"

// BotReply is handed to the dispatcher after a message has been handled
type BotReply struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	NextStep      *Step  `json:"next_step,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Error         string `json:"error,omitempty"`
}
