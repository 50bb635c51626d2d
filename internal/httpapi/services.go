package httpapi

import (
	"net/http"

	"deltacar/server/internal/catalog"
)

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	services, err := s.catalog.List(r.Context(), catalog.Query{
		Search: q.Get("search"),
		Sort:   catalog.ParseSort(q.Get("order")),
	})
	if err != nil {
		s.logger.Error("list services", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, services)
}

// getService answers a miss with 200 and a null body; a malformed id is a
// server error like any other lookup failure.
func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("get service", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, svc)
}
