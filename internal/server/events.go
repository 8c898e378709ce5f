package server

import (
	"net/http"
	"strconv"

	"github.com/clawdesk/clawdesk/internal/events"
)

const defaultEventLimit = 200

func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.events == nil {
			writeJSON(w, http.StatusOK, map[string]any{"events": []events.Record{}})
			return
		}
		limit := defaultEventLimit
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			limit = min(max(n, 1), events.MaxTail)
		}
		recs, err := s.events.Tail(limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": recs})
	}
}
