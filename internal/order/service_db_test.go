package order

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacar/server/internal/storage/storagetest"
	"deltacar/server/pkg/contracts"
)

type statusRecorder struct {
	mu      sync.Mutex
	updates map[string]any
}

func (r *statusRecorder) BroadcastOrderUpdate(orderID string, status any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = make(map[string]any)
	}
	r.updates[orderID] = status
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func outboxCount(t *testing.T, pool *pgxpool.Pool, eventType string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM order_outbox WHERE event_type = $1`, eventType).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestServiceCreateAndList(t *testing.T) {
	pool := storagetest.NewPool(t)
	svc := NewService(pool, nil)
	ctx := context.Background()

	res, err := svc.Create(ctx, Order{"email": "a@x.com", "serviceId": "S1", "_id": "client-chosen"})
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	_, err = uuid.Parse(res.InsertedID)
	require.NoError(t, err, "server allocates the identifier")

	_, err = svc.Create(ctx, Order{"email": "", "serviceId": "S2"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Order{"serviceId": "S3"})
	require.NoError(t, err)

	orders, err := svc.ListByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, res.InsertedID, orders[0]["_id"])
	assert.Equal(t, "S1", orders[0]["serviceId"])

	orders, err = svc.ListByEmail(ctx, "")
	require.NoError(t, err)
	require.Len(t, orders, 1, "only the order stored with an empty email")
	assert.Equal(t, "S2", orders[0]["serviceId"])

	orders, err = svc.ListByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	assert.Equal(t, 3, outboxCount(t, pool, contracts.EventOrderCreated))
}

func TestServiceUpdateStatus(t *testing.T) {
	pool := storagetest.NewPool(t)
	notifier := &statusRecorder{}
	svc := NewService(pool, notifier)
	ctx := context.Background()

	created, err := svc.Create(ctx, Order{"email": "a@x.com", "serviceId": "S1", "status": "pending"})
	require.NoError(t, err)

	res, err := svc.UpdateStatus(ctx, created.InsertedID, "done")
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, res)
	assert.Equal(t, "done", notifier.updates[created.InsertedID])

	res, err = svc.UpdateStatus(ctx, created.InsertedID, "done")
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Acknowledged: true, MatchedCount: 1}, res)

	res, err = svc.UpdateStatus(ctx, uuid.NewString(), "done")
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Acknowledged: true}, res)

	_, err = svc.UpdateStatus(ctx, "not-a-uuid", "done")
	assert.ErrorIs(t, err, ErrInvalidID)

	stored, err := svc.Get(ctx, created.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, "done", stored["status"])
	assert.Equal(t, "a@x.com", stored["email"])

	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 1, outboxCount(t, pool, contracts.EventOrderStatusChanged))
}

func TestServiceDelete(t *testing.T) {
	pool := storagetest.NewPool(t)
	svc := NewService(pool, nil)
	ctx := context.Background()

	keep, err := svc.Create(ctx, Order{"email": "a@x.com", "serviceId": "S1"})
	require.NoError(t, err)
	gone, err := svc.Create(ctx, Order{"email": "a@x.com", "serviceId": "S2"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, gone.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Acknowledged: true, DeletedCount: 1}, res)

	res, err = svc.Delete(ctx, gone.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Acknowledged: true}, res)

	_, err = svc.Get(ctx, gone.InsertedID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Get(ctx, keep.InsertedID)
	assert.NoError(t, err)

	assert.Equal(t, 1, outboxCount(t, pool, contracts.EventOrderDeleted))
}

func TestServiceApplyStatusCommand(t *testing.T) {
	pool := storagetest.NewPool(t)
	notifier := &statusRecorder{}
	svc := NewService(pool, notifier)
	ctx := context.Background()

	created, err := svc.Create(ctx, Order{"email": "a@x.com", "status": "pending"})
	require.NoError(t, err)

	cmd := contracts.OrderStatusCommand{EventID: uuid.NewString(), OrderID: created.InsertedID, Status: "ready"}
	require.NoError(t, svc.ApplyStatusCommand(ctx, cmd))

	// A redelivery with the same event id is ignored.
	cmd.Status = "lost"
	require.NoError(t, svc.ApplyStatusCommand(ctx, cmd))

	stored, err := svc.Get(ctx, created.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, "ready", stored["status"])
	assert.Equal(t, 1, notifier.count())

	unknown := contracts.OrderStatusCommand{EventID: uuid.NewString(), OrderID: uuid.NewString(), Status: "ready"}
	assert.ErrorIs(t, svc.ApplyStatusCommand(ctx, unknown), ErrOrderNotFound)

	var inbox int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM order_inbox`).Scan(&inbox))
	assert.Equal(t, 1, inbox, "a failed command is not recorded as processed")

	bad := contracts.OrderStatusCommand{EventID: "x", OrderID: created.InsertedID}
	assert.ErrorIs(t, svc.ApplyStatusCommand(ctx, bad), ErrInvalidCommand)
}
