// Package events publishes booking events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/codr1/courtslots/internal/availability"
)

const (
	BookingConfirmedType = "booking.confirmed.v1"
	publishTimeout       = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BookingConfirmed is the payload of a booking.confirmed.v1 event.
type BookingConfirmed struct {
	EventID       string    `json:"event_id"`
	BookingID     string    `json:"booking_id"`
	CourtID       int64     `json:"court_id"`
	CourtName     string    `json:"court_name"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	StartsAt      time.Time `json:"starts_at"`
	PriceCents    int64     `json:"price_cents"`
	PriceLabel    string    `json:"price_label"`
	ConfigVersion int64     `json:"config_version"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// Publisher sends booking confirmations to a Kafka topic. Sends run in the background; Close
// waits for them.
type Publisher struct {
	writer messageWriter
	topic  string
	wg     sync.WaitGroup
}

func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: writer, topic: topic}
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// BookingConfirmed implements availability.ConfirmationListener.
func (p *Publisher) BookingConfirmed(ctx context.Context, c availability.Confirmation) {
	msg, err := p.message(ctx, c)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("booking_id", c.BookingID).Msg("Failed to build booking event")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := p.writer.WriteMessages(sendCtx, msg); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("booking_id", c.BookingID).Str("topic", p.topic).Msg("Failed to publish booking event")
		}
	}()
}

func (p *Publisher) message(ctx context.Context, c availability.Confirmation) (kafka.Message, error) {
	event := BookingConfirmed{
		EventID:       uuid.NewString(),
		BookingID:     c.BookingID,
		CourtID:       c.Court.ID,
		CourtName:     c.Court.Name,
		Date:          c.Slot.Date.String(),
		StartTime:     c.Slot.StartTime.String(),
		EndTime:       c.Slot.EndTime.String(),
		StartsAt:      c.StartsAt.UTC(),
		PriceCents:    int64(c.Slot.Price),
		PriceLabel:    c.Slot.PriceLabel,
		ConfigVersion: c.ConfigVersion,
		CustomerEmail: c.CustomerEmail,
		ConfirmedAt:   c.ConfirmedAt.UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal booking event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(event.EventID)},
		{Key: "event_type", Value: []byte(BookingConfirmedType)},
	}
	return kafka.Message{
		Key:     []byte(strconv.FormatInt(c.Court.ID, 10)),
		Value:   payload,
		Headers: injectTraceHeaders(ctx, headers),
		Time:    c.ConfirmedAt,
	}, nil
}

func (p *Publisher) Close() error {
	p.wg.Wait()
	return p.writer.Close()
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
