package logstream

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("logstream: streaming not supported")

// SSESink writes events as text/event-stream frames and flushes after
// each one.
type SSESink struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSESink writes the stream headers and a 200 status.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSESink{w: w, f: f}, nil
}

// Send implements Sink.
func (s *SSESink) Send(e Event) error {
	if err := sse.Encode(s.w, sse.Event{Event: e.Name, Data: e.Data}); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
