package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtslots/internal/schedule"
)

type Message struct {
	Subject string
	Body    string
}

type BookingDetails struct {
	CourtName  string
	BookingID  string
	StartsAt   time.Time
	EndsAt     time.Time
	Price      schedule.Money
	PriceLabel string
}

type CancellationDetails struct {
	BookingDetails
	Refund           schedule.Money
	RefundPercentage int
}

// FormatDateTimeRange renders a booking window in the court's local time.
func FormatDateTimeRange(start, end time.Time) (string, string) {
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

func BuildBookingConfirmation(details BookingDetails) Message {
	courtName := courtNameOrDefault(details.CourtName)
	date, timeRange := FormatDateTimeRange(details.StartsAt, details.EndsAt)

	lines := []string{
		"Your court booking is confirmed.",
		"",
		fmt.Sprintf("Court: %s", courtName),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		fmt.Sprintf("Price: %s", details.Price),
	}
	if label := strings.TrimSpace(details.PriceLabel); label != "" {
		lines = append(lines, fmt.Sprintf("Rate: %s", label))
	}
	lines = append(lines, fmt.Sprintf("Booking reference: %s", details.BookingID))

	return Message{
		Subject: fmt.Sprintf("Booking Confirmed - %s", courtName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildCancellationEmail(details CancellationDetails) Message {
	courtName := courtNameOrDefault(details.CourtName)
	date, timeRange := FormatDateTimeRange(details.StartsAt, details.EndsAt)

	lines := []string{
		"Your court booking has been cancelled.",
		"",
		fmt.Sprintf("Court: %s", courtName),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		fmt.Sprintf("Refund: %s (%d%%)", details.Refund, details.RefundPercentage),
		fmt.Sprintf("Booking reference: %s", details.BookingID),
	}

	return Message{
		Subject: fmt.Sprintf("Booking Cancelled - %s", courtName),
		Body:    strings.Join(lines, "\n"),
	}
}

func courtNameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "your court"
	}
	return name
}
