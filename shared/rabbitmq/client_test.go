package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func newTestClient() *Client {
	return &Client{
		config: &Config{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_WatchCloseMarksDisconnected(t *testing.T) {
	c := newTestClient()
	c.connected.Store(true)

	closeChan := make(chan *amqp.Error, 1)
	closeChan <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}

	c.watchClose(closeChan)
	assert.False(t, c.connected.Load())
}

func TestClient_RequiresConnection(t *testing.T) {
	c := newTestClient()

	assert.Error(t, c.PublishWithRetry(context.Background(), []byte(`{}`), "application/json"))
	assert.Error(t, c.Qos(1))

	_, err := c.Consume("worker")
	assert.Error(t, err)
}
