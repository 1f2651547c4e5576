package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"CPITracker/internal/domain"
	"CPITracker/internal/ports"
)

// EventPriceObserved is the event_type header of published observations.
const EventPriceObserved = "price.observed"

// PriceObserved is the JSON payload sent for every stored observation.
type PriceObserved struct {
	EventID     uuid.UUID `json:"event_id"`
	ProductKey  uuid.UUID `json:"product_key"`
	ProductName string    `json:"product_name"`
	Category    string    `json:"category"`
	SourceURL   string    `json:"source_url"`
	Price       string    `json:"price"`
	ObservedAt  time.Time `json:"observed_at"`
	ObservedOn  string    `json:"observed_on"`
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher sends observation events over a NATS connection.
type Publisher struct {
	conn    msgPublisher
	subject string
	service string
}

var _ ports.ObservationPublisher = (*Publisher)(nil)

// New wraps a connected *nats.Conn.
func New(nc *nats.Conn, subject, service string) *Publisher {
	return newPublisher(nc, subject, service)
}

func newPublisher(conn msgPublisher, subject, service string) *Publisher {
	return &Publisher{conn: conn, subject: subject, service: service}
}

// PublishObservation serializes the observation with its product metadata.
func (p *Publisher) PublishObservation(ctx context.Context, product domain.Product, obs domain.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := PriceObserved{
		EventID:     uuid.New(),
		ProductKey:  product.Key,
		ProductName: product.Name,
		Category:    product.Category,
		SourceURL:   product.URL,
		Price:       obs.Value.String(),
		ObservedAt:  obs.ObservedAt,
		ObservedOn:  domain.DayOf(obs.ObservedAt).Format(time.DateOnly),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal price event: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{EventPriceObserved},
			"event_id":     []string{event.EventID.String()},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
