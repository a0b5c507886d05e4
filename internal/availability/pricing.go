package availability

import (
	"fmt"

	"github.com/codr1/courtslots/internal/schedule"
)

const standardPriceLabel = "Standard rate"

// PriceFor picks the price of a slot on date when booked on today. Bookings made at least
// AdvanceBookingDays ahead get the advance price.
func PriceFor(p schedule.Pricing, today, date schedule.Date) (schedule.Money, string) {
	if today.DaysUntil(date) >= p.AdvanceBookingDays {
		return p.AdvanceBookingPrice, advanceLabel(p.AdvanceBookingDays)
	}
	return p.StandardPrice, standardPriceLabel
}

func advanceLabel(days int) string {
	if days == 1 {
		return "Advance booking (1+ day ahead)"
	}
	return fmt.Sprintf("Advance booking (%d+ days ahead)", days)
}
