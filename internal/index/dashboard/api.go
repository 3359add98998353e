package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
)

// FilterFromQuery converts decoded query parameters into a list filter.
// The raw predicate travels URL-encoded inside a Filter, so it is
// re-encoded here.
func FilterFromQuery(q url.Values) db.Filter {
	f := make(db.Filter, len(q))
	for key, values := range q {
		if key == db.WhereKey {
			encoded := make([]string, len(values))
			for i, v := range values {
				encoded[i] = url.QueryEscape(v)
			}
			values = encoded
		}
		f[key] = values
	}
	return f
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(w, r)
	if !ok {
		return
	}
	ids, err := s.catalog.List(r.Context(), v, FilterFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(w, r)
	if !ok {
		return
	}
	n, err := s.catalog.Count(r.Context(), v)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.Itoa(n)))
}

// handleGet returns the card file byte for byte.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(w, r)
	if !ok {
		return
	}
	data, err := s.catalog.Get(r.Context(), v, r.PathValue("nameOrID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) variant(w http.ResponseWriter, r *http.Request) (schema.Variant, bool) {
	v, err := schema.ParseVariant(r.PathValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return schema.Invalid, false
	}
	return v, true
}

// StatusCode maps a catalog error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, schema.ErrNotFound), errors.Is(err, schema.ErrCardAccess):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrAmbiguous), errors.Is(err, db.ErrBadFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Printf("Request failed: %v", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
