package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/security"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// fail maps err onto its status and a redacted body. Unclassified errors
// are logged and reported as a generic internal error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, secrets ...string) {
	secrets = append(secrets, s.secret.Current())
	status := apperr.Status(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", s.redactor.RedactText(err.Error(), secrets...),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	body := errorBody{Error: s.redactor.RedactText(err.Error(), secrets...)}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindProcess {
		detail := strings.TrimSpace(ae.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(ae.Stdout)
		}
		body.Detail = s.redactor.RedactText(detail, secrets...)
	}
	writeJSON(w, status, body)
}

// readBody reads at most maxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation(security.ErrBodyTooLarge.Error())
		}
		return nil, err
	}
	return body, nil
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := security.CheckJSON(body, maxBodyBytes, security.MaxJSONDepth); err != nil {
		return apperr.Validation(err.Error())
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}
