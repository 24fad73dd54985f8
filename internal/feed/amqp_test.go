package feed

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRabbitMQ(t *testing.T) *amqp.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping RabbitMQ container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	url := "amqp://" + host + ":" + mappedPort.Port() + "/"
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(10 * time.Second),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cleanupCancel()
		_ = conn.Close()
		_ = container.Terminate(cleanupCtx)
	})
	return conn
}

func TestAMQPFeed_FanoutToEveryInstance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := startRabbitMQ(t)

	one, err := NewAMQPFeed(conn, "", zerolog.Nop())
	require.NoError(t, err)
	defer one.Close()
	two, err := NewAMQPFeed(conn, "", zerolog.Nop())
	require.NoError(t, err)
	defer two.Close()

	chOne, unsubOne := one.Subscribe("cart:s1")
	defer unsubOne()
	chTwo, unsubTwo := two.Subscribe("cart:s1")
	defer unsubTwo()
	go one.Run(ctx)
	go two.Run(ctx)

	require.NoError(t, one.Publish(ctx, Change{Key: "cart:s1", Source: "store-a"}))

	assert.Equal(t, "store-a", receive(t, chOne).Source)
	assert.Equal(t, "store-a", receive(t, chTwo).Source)
}
