package server

import (
	"net/http"
	"strings"

	"github.com/clawdesk/clawdesk/internal/usage"
)

func (s *Server) handleUsageSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := s.resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		snap, err := s.usage.Snapshot(r.Context(), prof)
		if err != nil {
			s.fail(w, r, err, prof.Secrets()...)
			return
		}
		if s.history != nil {
			if err := s.history.Record(r.Context(), snap); err != nil {
				s.logger.Warn("recording usage snapshot failed", "profile", prof.Name, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) usageRange(r *http.Request) (usage.Report, error) {
	if s.history == nil {
		name, _ := usage.ParseRange(r.URL.Query().Get("range"))
		return usage.Report{Range: name, Entries: []usage.Snapshot{}}, nil
	}
	name, entries, err := s.history.Range(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		return usage.Report{}, err
	}
	return usage.Report{Range: name, Entries: entries}, nil
}

func (s *Server) handleUsageHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.usageRange(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleUsageExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.usageRange(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		format := r.URL.Query().Get("format")
		body, contentType, err := usage.Export(rep, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if strings.HasPrefix(contentType, "text/csv") {
			w.Header().Set("Content-Disposition", `attachment; filename="clawdesk-usage-`+rep.Range+`.csv"`)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
