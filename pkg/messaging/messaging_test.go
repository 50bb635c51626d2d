package messaging

import (
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: -3, want: time.Second},
		{attempts: 0, want: time.Second},
		{attempts: 1, want: 2 * time.Second},
		{attempts: 3, want: 8 * time.Second},
		{attempts: 5, want: 32 * time.Second},
		{attempts: 6, want: time.Minute},
		{attempts: 40, want: time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestPublishing(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	msg := Message{ID: "evt-1", Type: "orders.created", Body: []byte(`{"order_id":"o-1"}`)}

	p := publishing(msg, now)

	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp091.Persistent, p.DeliveryMode)
	assert.Equal(t, "evt-1", p.MessageId)
	assert.Equal(t, "orders.created", p.Type)
	assert.Equal(t, now.UTC(), p.Timestamp)
	assert.Equal(t, msg.Body, p.Body)
}

func TestDeadLetterTopology(t *testing.T) {
	dlx, dead := deadLetterNames("orders.status-updates")

	assert.Equal(t, "orders.status-updates.dlx", dlx)
	assert.Equal(t, "orders.status-updates.dead", dead)
	assert.Equal(t, amqp091.Table{"x-dead-letter-exchange": dlx}, queueArgs(dlx))
}
