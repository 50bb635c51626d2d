package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"deltacar/server/internal/order"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

type mockAcknowledger struct {
	mock.Mock
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	return m.Called(tag, multiple).Error(0)
}

func (m *mockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return m.Called(tag, multiple, requeue).Error(0)
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Called(tag, requeue).Error(0)
}

func TestHandleStatusCommandDropsBadMessages(t *testing.T) {
	a := &App{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		orderSvc: order.NewService(nil, nil),
	}

	bodies := map[string]string{
		"not json":     `{"event_id":`,
		"bad event id": `{"event_id":"x","order_id":"3c0f3c2e-7c9b-4f55-a3c8-0d7e2b8f1a44","status":"done"}`,
		"bad order id": `{"event_id":"3c0f3c2e-7c9b-4f55-a3c8-0d7e2b8f1a44","order_id":"nope","status":"done"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ack := &mockAcknowledger{}
			ack.On("Nack", uint64(7), false, false).Return(nil).Once()

			a.handleStatusCommand(context.Background(), amqp091.Delivery{
				Acknowledger: ack,
				DeliveryTag:  7,
				Body:         []byte(body),
			})

			ack.AssertExpectations(t)
			ack.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
		})
	}
}
