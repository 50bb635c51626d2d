package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"deltacar/server/internal/catalog"
	"deltacar/server/internal/config"
	"deltacar/server/internal/httpapi"
	"deltacar/server/internal/order"
	"deltacar/server/internal/storage"
	"deltacar/server/internal/token"
	"deltacar/server/internal/websocket"
	"deltacar/server/pkg/contracts"
	"deltacar/server/pkg/messaging"

	"github.com/rabbitmq/amqp091-go"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	orderSvc  *order.Service
	wsHub     *websocket.Hub
	publisher messaging.Publisher
	outbox    *messaging.OutboxDispatcher
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	tokens, err := token.NewService(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		// Keep serving; database-backed routes fail until it comes back.
		logger.Error("database unavailable at startup", "err", err)
	} else {
		logger.Info("connected to database")
	}

	wsHub := websocket.NewHub()
	catalogSvc := catalog.New(store.Pool())
	orderSvc := order.NewService(store.Pool(), wsHub)

	api := httpapi.NewServer(catalogSvc, orderSvc, tokens, logger)
	wsHandler := websocket.NewHandler(wsHub, orderSvc, logger)
	api.HandleAuthenticated("GET /orders/{id}/ws", wsHandler.ServeWS)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		orderSvc: orderSvc,
		wsHub:    wsHub,
		httpSrv:  httpSrv,
	}

	if cfg.MessagingEnabled() {
		if err := a.initMessaging(); err != nil {
			store.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) initMessaging() error {
	publisher, err := messaging.NewRabbitPublisher(a.cfg.RabbitURL, a.cfg.OrdersExchange)
	if err != nil {
		return err
	}

	consumer, err := messaging.NewRabbitConsumer(a.cfg.RabbitURL, a.cfg.StatusExchange, a.cfg.StatusQueue, a.logger)
	if err != nil {
		publisher.Close()
		return err
	}

	a.publisher = publisher
	a.consumer = consumer
	a.outbox = messaging.NewOutboxDispatcher(a.store.Pool(), publisher, "order_outbox", a.cfg.OutboxInterval, a.cfg.OutboxBatchSize, a.logger)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go a.wsHub.Run(ctx)

	if a.outbox != nil {
		a.outbox.Start(ctx)
		go func() {
			if err := a.consumer.Start(ctx, a.handleStatusCommand); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		a.logger.Info("Delta car server running", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	if a.consumer != nil {
		a.consumer.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	a.store.Close()
	a.logger.Info("database connection closed")
}

func (a *App) handleStatusCommand(ctx context.Context, msg amqp091.Delivery) {
	var cmd contracts.OrderStatusCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		a.logger.Error("invalid status command", "err", err)
		_ = msg.Nack(false, false)
		return
	}

	if err := a.orderSvc.ApplyStatusCommand(ctx, cmd); err != nil {
		requeue := !errors.Is(err, order.ErrOrderNotFound) && !errors.Is(err, order.ErrInvalidCommand)
		a.logger.Error("apply status command failed", "order_id", cmd.OrderID, "requeue", requeue, "err", err)
		_ = msg.Nack(false, requeue)
		return
	}

	_ = msg.Ack(false)
}

// NewLogger builds the process logger the way every command uses it.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func Run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
