package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawdesk/clawdesk/internal/logstream"
	"github.com/clawdesk/clawdesk/internal/openclaw"
	"github.com/clawdesk/clawdesk/internal/security"
)

// wsWriteTimeout bounds one WebSocket frame write.
const wsWriteTimeout = 5 * time.Second

// newStream builds the poll loop for one client. The profile is resolved
// again on every poll so a profile switch applies to open streams.
func (s *Server) newStream(r *http.Request, sink logstream.Sink) (*logstream.Stream, error) {
	cfg, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()
	tail := logstream.ClampTail(q.Get("tail"))
	interval := logstream.ClampInterval(q.Get("interval"), time.Duration(cfg.Observability.LogPollMs)*time.Millisecond)
	name := q.Get("profile")

	poll := func(ctx context.Context) ([]string, error) {
		prof, err := s.resolveNamed(name)
		if err != nil {
			return nil, err
		}
		secrets := s.secrets(prof)
		out, err := s.gateway.Logs(ctx, tail, prof.Env())
		if err != nil {
			return nil, errors.New(s.redactor.RedactText(err.Error(), secrets...))
		}
		return openclaw.SplitLines(s.redactor.RedactText(out, secrets...)), nil
	}
	return &logstream.Stream{
		Poll:     poll,
		Interval: interval,
		Sink:     sink,
		Redact: func(msg string) string {
			return s.redactor.RedactText(msg, s.secret.Current())
		},
		Logger: s.logger,
	}, nil
}

// handleLogStream serves GET /api/logs/stream as text/event-stream.
func (s *Server) handleLogStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Fail before the 200 is committed.
		if _, err := s.store.Load(); err != nil {
			s.fail(w, r, err)
			return
		}
		sink, err := logstream.NewSSESink(w)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		st, err := s.newStream(r, sink)
		if err != nil {
			return
		}
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
		if err := st.Run(r.Context()); err != nil {
			s.logger.Debug("log stream ended", "error", err)
		}
	}
}

// wsSink writes events as JSON text frames.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (ws *wsSink) Send(e logstream.Event) error {
	ctx, cancel := context.WithTimeout(ws.ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws.conn, wsFrame{Event: e.Name, Data: e.Data})
}

// originPatterns converts the allowed origins into host patterns for the
// WebSocket handshake check.
func originPatterns(origins map[string]bool) []string {
	out := make([]string, 0, len(origins))
	for o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}

// handleLogSocket serves GET /api/logs/ws. Client frames are ignored; the
// stream ends when the client closes the socket.
func (s *Server) handleLogSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.store.Load()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns(security.AllowedOrigins(cfg)),
		})
		if err != nil {
			s.logger.Debug("websocket handshake failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		ctx := conn.CloseRead(r.Context())
		st, err := s.newStream(r, &wsSink{ctx: ctx, conn: conn})
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "stream unavailable")
			return
		}
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
		if err := st.Run(ctx); err != nil {
			s.logger.Debug("log socket ended", "error", err)
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}
