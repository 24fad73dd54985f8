package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const DefaultKafkaTopic = "cart-changes"

// KafkaFeed relays changes through a single-partition topic. Every instance
// reads the whole topic from its tail, so there is no consumer group.
type KafkaFeed struct {
	*hub
	writer *kafka.Writer
	reader *kafka.Reader
	log    zerolog.Logger
}

func NewKafkaFeed(topic string, log zerolog.Logger, brokers ...string) *KafkaFeed {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		Partition:   0,
		StartOffset: kafka.LastOffset,
		MaxBytes:    1e6,
	})
	return &KafkaFeed{hub: newHub(), writer: writer, reader: reader, log: log}
}

func (f *KafkaFeed) Publish(ctx context.Context, c Change) error {
	if f.isClosed() {
		return ErrClosed
	}
	data, err := encodeChange(c)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(c.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("CartChanged")},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

func (f *KafkaFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || f.isClosed() {
			return
		}
		f.readMessage(ctx)
	}
}

func (f *KafkaFeed) readMessage(ctx context.Context) {
	m, err := f.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if f.isClosed() {
			return
		}
		f.log.Error().Err(err).Msg("error reading change")
		return
	}

	c, err := decodeChange(m.Value)
	if err != nil {
		f.log.Warn().Err(err).Int64("offset", m.Offset).Msg("dropping malformed change")
		return
	}
	f.dispatch(c)
}

func (f *KafkaFeed) Close() error {
	f.close()
	return errors.Join(f.writer.Close(), f.reader.Close())
}
