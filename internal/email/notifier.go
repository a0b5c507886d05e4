package email

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtslots/internal/availability"
)

const sendTimeout = 5 * time.Second

// Notifier emails customers about their bookings. Sends run in the background so booking
// responses never wait on SES.
type Notifier struct {
	sender EmailSender
	wg     sync.WaitGroup
}

func NewNotifier(sender EmailSender) *Notifier {
	return &Notifier{sender: sender}
}

// BookingConfirmed implements availability.ConfirmationListener.
func (n *Notifier) BookingConfirmed(ctx context.Context, c availability.Confirmation) {
	if strings.TrimSpace(c.CustomerEmail) == "" {
		return
	}
	duration := time.Duration(c.Slot.EndTime-c.Slot.StartTime) * time.Minute
	msg := BuildBookingConfirmation(BookingDetails{
		CourtName:  c.Court.Name,
		BookingID:  c.BookingID,
		StartsAt:   c.StartsAt,
		EndsAt:     c.StartsAt.Add(duration),
		Price:      c.Slot.Price,
		PriceLabel: c.Slot.PriceLabel,
	})
	n.send(ctx, c.CustomerEmail, msg)
}

// BookingCancelled emails a cancellation notice to recipient.
func (n *Notifier) BookingCancelled(ctx context.Context, recipient string, details CancellationDetails) {
	if strings.TrimSpace(recipient) == "" {
		return
	}
	n.send(ctx, recipient, BuildCancellationEmail(details))
}

func (n *Notifier) send(ctx context.Context, recipient string, msg Message) {
	if n == nil || n.sender == nil {
		return
	}
	logger := log.Ctx(ctx).With().Str("recipient", recipient).Logger()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := n.sender.Send(sendCtx, recipient, msg.Subject, msg.Body); err != nil {
			logger.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send booking email")
		}
	}()
}

// Wait blocks until in-flight sends finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
