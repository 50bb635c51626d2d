package httpapi

import (
	"net/http"
	"strings"

	"deltacar/server/internal/token"
)

// requireAuth rejects requests without a valid bearer token and hands the
// decoded payload to next through the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		id, err := s.tokens.Verify(bearerToken(header))
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		next(w, r.WithContext(token.NewContext(r.Context(), id)))
	}
}

// bearerToken returns the second space-separated field of the header. The
// scheme word is not inspected.
func bearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func identity(r *http.Request) token.Identity {
	id, _ := token.FromContext(r.Context())
	return id
}
