package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"deltacar/server/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidID     = errors.New("invalid order id")

	ErrInvalidCommand = errors.New("invalid status command")
)

// StatusNotifier is told about every status change that was committed.
type StatusNotifier interface {
	BroadcastOrderUpdate(orderID string, status any)
}

type Service struct {
	pool     *pgxpool.Pool
	notifier StatusNotifier
}

func NewService(pool *pgxpool.Pool, notifier StatusNotifier) *Service {
	return &Service{pool: pool, notifier: notifier}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w %q: %w", ErrInvalidID, raw, err)
	}
	return id, nil
}

func (s *Service) Create(ctx context.Context, o Order) (InsertResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	orderID := uuid.New()
	body := o.Body()
	email := ownerEmail(body)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, email, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		orderID, email, body, now,
	)
	if err != nil {
		return InsertResult{}, fmt.Errorf("insert order: %w", err)
	}

	event := contracts.OrderCreatedEvent{
		EventID:   uuid.New().String(),
		OrderID:   orderID.String(),
		Order:     body,
		CreatedAt: now,
	}
	if email != nil {
		event.Email = *email
	}
	if err := enqueue(ctx, tx, event.EventID, contracts.EventOrderCreated, event); err != nil {
		return InsertResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return InsertResult{}, err
	}

	return InsertResult{Acknowledged: true, InsertedID: orderID.String()}, nil
}

// ListByEmail returns every order owned by email, in no particular order.
// Orders stored without an email never match, not even "".
func (s *Service) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, doc FROM orders WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	result := make([]Order, 0)
	for rows.Next() {
		var (
			id  uuid.UUID
			doc Order
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		result = append(result, doc.WithID(id))
	}

	return result, rows.Err()
}

func (s *Service) Get(ctx context.Context, rawID string) (Order, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	var doc Order
	err = s.pool.QueryRow(ctx, `SELECT doc FROM orders WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return doc.WithID(id), nil
}

// UpdateStatus sets the status field of one order. An unknown id is not an
// error: the result simply reports nothing matched.
func (s *Service) UpdateStatus(ctx context.Context, rawID string, status any) (UpdateResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return UpdateResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UpdateResult{}, err
	}
	defer tx.Rollback(ctx)

	res, err := updateStatus(ctx, tx, id, status)
	if err != nil {
		return UpdateResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UpdateResult{}, err
	}

	if res.ModifiedCount > 0 {
		s.notify(id, status)
	}
	return res, nil
}

func updateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status any) (UpdateResult, error) {
	encoded, err := json.Marshal(status)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("encode status: %w", err)
	}

	res := UpdateResult{Acknowledged: true}

	var unchanged bool
	err = tx.QueryRow(ctx, `
		SELECT doc->'status' IS NOT DISTINCT FROM $2::jsonb
		FROM orders
		WHERE id = $1
		FOR UPDATE`,
		id, string(encoded),
	).Scan(&unchanged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, nil
		}
		return UpdateResult{}, fmt.Errorf("lock order: %w", err)
	}
	res.MatchedCount = 1
	if unchanged {
		return res, nil
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET doc = jsonb_set(doc, '{status}', $2::jsonb, true), updated_at = $3
		WHERE id = $1`,
		id, string(encoded), now,
	)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update order status: %w", err)
	}
	res.ModifiedCount = 1

	event := contracts.OrderStatusChangedEvent{
		EventID:   uuid.New().String(),
		OrderID:   id.String(),
		Status:    status,
		ChangedAt: now,
	}
	if err := enqueue(ctx, tx, event.EventID, contracts.EventOrderStatusChanged, event); err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

func (s *Service) Delete(ctx context.Context, rawID string) (DeleteResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return DeleteResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DeleteResult{}, err
	}
	defer tx.Rollback(ctx)

	var email *string
	err = tx.QueryRow(ctx, `DELETE FROM orders WHERE id = $1 RETURNING email`, id).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeleteResult{Acknowledged: true}, nil
		}
		return DeleteResult{}, fmt.Errorf("delete order: %w", err)
	}

	event := contracts.OrderDeletedEvent{
		EventID:   uuid.New().String(),
		OrderID:   id.String(),
		DeletedAt: time.Now().UTC(),
	}
	if email != nil {
		event.Email = *email
	}
	if err := enqueue(ctx, tx, event.EventID, contracts.EventOrderDeleted, event); err != nil {
		return DeleteResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

// ApplyStatusCommand applies a status change received from the broker.
// Redelivered commands are recognised by event id and ignored.
func (s *Service) ApplyStatusCommand(ctx context.Context, cmd contracts.OrderStatusCommand) error {
	eventID, err := uuid.Parse(cmd.EventID)
	if err != nil {
		return fmt.Errorf("%w: event id: %w", ErrInvalidCommand, err)
	}
	orderID, err := parseID(cmd.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO order_inbox (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, contracts.EventOrderStatusCommand)
	if err != nil {
		return fmt.Errorf("insert inbox: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already processed.
		return nil
	}

	res, err := updateStatus(ctx, tx, orderID, cmd.Status)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if res.ModifiedCount > 0 {
		s.notify(orderID, cmd.Status)
	}
	return nil
}

func (s *Service) notify(id uuid.UUID, status any) {
	if s.notifier != nil {
		s.notifier.BroadcastOrderUpdate(id.String(), status)
	}
}

func enqueue(ctx context.Context, tx pgx.Tx, eventID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		eventID, eventType, payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
