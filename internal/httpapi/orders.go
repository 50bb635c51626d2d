package httpapi

import (
	"net/http"

	"deltacar/server/internal/order"
)

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	// An absent parameter only matches a token without an email claim, and
	// then lists the orders stored with an empty email.
	q := r.URL.Query()
	var owner any
	if q.Has("email") {
		owner = q.Get("email")
	}
	if !identity(r).Owns(owner) {
		writeError(w, http.StatusForbidden, msgUnauthorized)
		return
	}

	orders, err := s.orders.ListByEmail(r.Context(), q.Get("email"))
	if err != nil {
		s.logger.Error("list orders", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	o := order.Order(body)
	if !identity(r).Owns(o["email"]) {
		writeError(w, http.StatusForbidden, msgUnauthorized)
		return
	}

	res, err := s.orders.Create(r.Context(), o)
	if err != nil {
		s.logger.Error("create order", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// updateOrderStatus lets any authenticated caller change any order's status.
// Unlike delete it performs no ownership check.
func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	res, err := s.orders.UpdateStatus(r.Context(), r.PathValue("id"), body["status"])
	if err != nil {
		s.logger.Error("update order status", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// deleteOrder checks ownership against the stored order first. A missing
// order fails the request with a server error rather than a 404.
func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	o, err := s.orders.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("load order for delete", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if !identity(r).Owns(o["email"]) {
		writeError(w, http.StatusForbidden, msgUnauthorized)
		return
	}

	res, err := s.orders.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("delete order", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
