package services

import (
	"fmt"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

// serviceList renders the numbered service menu
func serviceList(services []models.Service, currency string) string {
	response := "💇 *Our Services*\n\n"
	for i, s := range services {
		response += fmt.Sprintf("%d. *%s* - %s (%d min)\n", i+1, s.Name, FormatPrice(s.Price, currency), s.Duration())
	}
	return response
}

// dateList renders the offered dates, numbered from 1
func dateList(dates []models.DateOption) string {
	response := "📅 *Available Dates*\n\n"
	for i, d := range dates {
		response += fmt.Sprintf("%d. %s\n", i+1, d.Label)
	}
	return response
}

// slotList shows every catalog slot. Only available slots get a number, and that number
// is what an ordinal reply selects.
func slotList(slots []models.TimeSlot) string {
	response := "⏰ *Time Slots*\n\n"
	n := 0
	for _, s := range slots {
		if s.Available {
			n++
			response += fmt.Sprintf("%d. %s ✅ Available\n", n, FormatClock(s.Time))
			continue
		}
		response += fmt.Sprintf("•  %s ❌ Booked\n", FormatClock(s.Time))
	}
	return response
}

func staffList(staff []models.StaffMember) string {
	response := "👩‍💼 *Our Team*\n\n"
	for i, s := range staff {
		if spec := s.SpecializationsDisplay(); spec != "" {
			response += fmt.Sprintf("%d. *%s* (%s)\n", i+1, s.Name, spec)
			continue
		}
		response += fmt.Sprintf("%d. *%s*\n", i+1, s.Name)
	}
	return response
}

// confirmationSummary renders the appointment snapshot exactly as it will be stored
func confirmationSummary(data *models.AppointmentData) string {
	staff := data.StaffName
	if staff == "" {
		staff = "Any available"
	}
	return fmt.Sprintf(`📋 *Appointment Summary*

💇 *Service:* %s
📅 *Date:* %s
⏰ *Time:* %s
👤 *With:* %s
⌛ *Duration:* %d min
💰 *Price:* %s`,
		data.ServiceName,
		FormatDateLabel(data.Date),
		FormatClock(data.Time),
		staff,
		data.DurationMinutes,
		FormatPrice(data.Price, data.Currency),
	)
}

// FormatPrice renders whole currency units, using a symbol for common currencies
func FormatPrice(amount int, currency string) string {
	switch currency {
	case "INR":
		return fmt.Sprintf("₹%d", amount)
	case "USD":
		return fmt.Sprintf("$%d", amount)
	case "EUR":
		return fmt.Sprintf("€%d", amount)
	case "GBP":
		return fmt.Sprintf("£%d", amount)
	case "":
		return fmt.Sprintf("%d", amount)
	default:
		return fmt.Sprintf("%s %d", currency, amount)
	}
}
