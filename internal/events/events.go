// Package events publishes domain events for downstream consumers such as
// the reporting worker and the low-stock notifier.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectSaleCompleted    = "tirepos.sale.completed"
	SubjectSaleCanceled     = "tirepos.sale.canceled"
	SubjectStockReceived    = "tirepos.stock.received"
	SubjectStockTransferred = "tirepos.stock.transferred"
	SubjectLowStock         = "tirepos.stock.low"
)

type Event struct {
	Subject    string    `json:"subject"`
	StoreID    string    `json:"store_id"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("tirepos-backend"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before publish: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.conn.Publish(event.Subject, data)
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
