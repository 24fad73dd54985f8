package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const DefaultAMQPExchange = "storefront.cart-changes"

// AMQPFeed relays changes through a fanout exchange. Each instance binds its own
// exclusive queue, which RabbitMQ deletes when the connection goes away.
type AMQPFeed struct {
	*hub
	exchange string
	log      zerolog.Logger

	pubMu      sync.Mutex
	pubCh      *amqp.Channel
	subCh      *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

func NewAMQPFeed(conn *amqp.Connection, exchange string, log zerolog.Logger) (*AMQPFeed, error) {
	if exchange == "" {
		exchange = DefaultAMQPExchange
	}

	pubCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	subCh, err := conn.Channel()
	if err != nil {
		_ = pubCh.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closeAll := func() {
		_ = subCh.Close()
		_ = pubCh.Close()
	}

	if err := pubCh.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	q, err := subCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := subCh.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("bind %s to %s: %w", q.Name, exchange, err)
	}
	deliveries, err := subCh.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	return &AMQPFeed{
		hub:        newHub(),
		exchange:   exchange,
		log:        log,
		pubCh:      pubCh,
		subCh:      subCh,
		queue:      q.Name,
		deliveries: deliveries,
	}, nil
}

func (f *AMQPFeed) Publish(ctx context.Context, c Change) error {
	if f.isClosed() {
		return ErrClosed
	}
	body, err := encodeChange(c)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	err = f.pubCh.PublishWithContext(pubCtx, f.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        "CartChanged",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish failed: %w", err)
	}
	return nil
}

// Run consumes the instance queue until ctx is done or the channel closes.
func (f *AMQPFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-f.deliveries:
			if !ok {
				return
			}
			c, err := decodeChange(d.Body)
			if err != nil {
				f.log.Warn().Err(err).Str("queue", f.queue).Msg("dropping malformed change")
				continue
			}
			f.dispatch(c)
		}
	}
}

func (f *AMQPFeed) Close() error {
	f.close()
	return errors.Join(f.subCh.Close(), f.pubCh.Close())
}
