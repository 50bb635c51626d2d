package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"deltacar/server/internal/catalog"
	"deltacar/server/internal/order"
	"deltacar/server/internal/storage"
	"deltacar/server/internal/token"

	"github.com/rs/cors"
)

const (
	msgUnauthorized = "Unauthorized access"
	msgInternal     = "internal error"
	msgBadJSON      = "invalid JSON body"

	livenessText = "Delta car server running"
)

type Catalog interface {
	List(ctx context.Context, q catalog.Query) ([]storage.Document, error)
	Get(ctx context.Context, id string) (storage.Document, error)
}

type Orders interface {
	ListByEmail(ctx context.Context, email string) ([]order.Order, error)
	Create(ctx context.Context, o order.Order) (order.InsertResult, error)
	Get(ctx context.Context, id string) (order.Order, error)
	UpdateStatus(ctx context.Context, id string, status any) (order.UpdateResult, error)
	Delete(ctx context.Context, id string) (order.DeleteResult, error)
}

type Tokens interface {
	Issue(payload map[string]any) (string, error)
	Verify(raw string) (token.Identity, error)
}

type Server struct {
	catalog Catalog
	orders  Orders
	tokens  Tokens
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

func NewServer(cat Catalog, orders Orders, tokens Tokens, logger *slog.Logger) *Server {
	s := &Server{
		catalog: cat,
		orders:  orders,
		tokens:  tokens,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.handler = cors.AllowAll().Handler(s.logRequests(s.mux))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.liveness)
	s.mux.HandleFunc("POST /jwt", s.issueToken)

	s.mux.HandleFunc("GET /services", s.listServices)
	s.mux.HandleFunc("GET /services/{id}", s.getService)

	s.mux.HandleFunc("GET /orders", s.requireAuth(s.listOrders))
	s.mux.HandleFunc("POST /orders", s.requireAuth(s.createOrder))
	s.mux.HandleFunc("PATCH /orders/{id}", s.requireAuth(s.updateOrderStatus))
	s.mux.HandleFunc("DELETE /orders/{id}", s.requireAuth(s.deleteOrder))
}

// HandleAuthenticated registers an extra route behind the bearer token check.
func (s *Server) HandleAuthenticated(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.requireAuth(h))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, livenessText)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	signed, err := s.tokens.Issue(payload)
	if err != nil {
		s.logger.Error("issue token", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(r *http.Request) (map[string]any, error) {
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return obj, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
