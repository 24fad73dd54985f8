package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) string {
	if testing.Short() {
		t.Skip("skipping Kafka container test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestKafkaFeed_CrossInstance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerAddr := setupKafka(t)
	createTopic(t, brokerAddr, DefaultKafkaTopic)

	publisher := NewKafkaFeed("", zerolog.Nop(), brokerAddr)
	defer publisher.Close()
	listener := NewKafkaFeed("", zerolog.Nop(), brokerAddr)
	defer listener.Close()

	ch, unsub := listener.Subscribe("cart:s1")
	defer unsub()
	go listener.Run(ctx)

	// the reader starts at the tail once it connects; keep announcing until it does
	require.Eventually(t, func() bool {
		if err := publisher.Publish(ctx, Change{Key: "cart:s1", Source: "store-a"}); err != nil {
			return false
		}
		select {
		case c := <-ch:
			return c.Source == "store-a"
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 30*time.Second, 100*time.Millisecond)
}
