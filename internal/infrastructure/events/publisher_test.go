package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPITracker/internal/domain"
)

type recordingConn struct {
	msgs []*nats.Msg
	err  error
}

func (r *recordingConn) PublishMsg(m *nats.Msg) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func TestPublishObservation(t *testing.T) {
	conn := &recordingConn{}
	pub := newPublisher(conn, "cpi.prices", "cpi-collector")

	product := domain.Product{ID: 4, Key: uuid.New(), URL: "https://shop.example/a", Name: "Shoe A", Category: "shoes"}
	at := time.Date(2025, time.March, 1, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
	obs := domain.Observation{ProductID: 4, Value: decimal.RequireFromString("99.90"), ObservedAt: at}

	require.NoError(t, pub.PublishObservation(context.Background(), product, obs))
	require.Len(t, conn.msgs, 1)

	msg := conn.msgs[0]
	assert.Equal(t, "cpi.prices", msg.Subject)
	assert.Equal(t, EventPriceObserved, msg.Header.Get("event_type"))
	assert.Equal(t, "cpi-collector", msg.Header.Get("service"))

	var event PriceObserved
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, product.Key, event.ProductKey)
	assert.Equal(t, "99.9", event.Price)
	assert.Equal(t, "2025-03-01", event.ObservedOn)
	assert.Equal(t, event.EventID.String(), msg.Header.Get("event_id"))
}

func TestPublishObservationPropagatesErrors(t *testing.T) {
	conn := &recordingConn{err: errors.New("nats: connection closed")}
	pub := newPublisher(conn, "cpi.prices", "cpi-collector")

	err := pub.PublishObservation(context.Background(), domain.Product{}, domain.Observation{Value: decimal.Zero})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cpi.prices")
}
