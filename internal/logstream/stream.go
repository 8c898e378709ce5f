// Package logstream pushes gateway log tails to connected clients and
// provides the reconnecting client used by `clawdesk logs --follow`.
package logstream

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Tail and interval bounds for a stream.
const (
	DefaultTail       = 120
	MinTail           = 1
	MaxTail           = 300
	MinInterval       = 800 * time.Millisecond
	MaxInterval       = 8 * time.Second
	DefaultInterval   = 1500 * time.Millisecond
	HeartbeatInterval = 10 * time.Second
)

// Event names.
const (
	EventLogs      = "logs"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// Event is one message pushed to a client.
type Event struct {
	Name string
	Data any
}

// LogsData is the payload of a logs event.
type LogsData struct {
	Lines []string `json:"lines"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// ClampTail parses a tail query value into [MinTail, MaxTail]. Missing or
// unparsable values give DefaultTail.
func ClampTail(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultTail
	}
	return min(max(n, MinTail), MaxTail)
}

// ClampInterval parses an interval in milliseconds into [MinInterval,
// MaxInterval]. Missing, unparsable, or non-positive values use def, or
// DefaultInterval when def is unset.
func ClampInterval(raw string, def time.Duration) time.Duration {
	if def <= 0 {
		def = DefaultInterval
	}
	d := def
	if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
		d = time.Duration(ms) * time.Millisecond
	}
	return min(max(d, MinInterval), MaxInterval)
}

// PollFunc fetches the current log tail. Returned lines must already be
// redacted.
type PollFunc func(ctx context.Context) ([]string, error)

// Sink delivers events to one client. Send is only called from the
// Stream's own goroutine.
type Sink interface {
	Send(Event) error
}

// ticker abstracts time.Ticker so tests can drive the loop by hand.
type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) Chan() <-chan time.Time { return t.C }

func newRealTicker(d time.Duration) ticker { return realTicker{time.NewTicker(d)} }

type pollResult struct {
	lines []string
	err   error
}

// Stream is the per-connection poll loop. It polls once immediately, then
// once per Interval, and sends a heartbeat every Heartbeat. Polls never
// overlap: a tick that fires during a slow poll starts the next poll as
// soon as the slow one returns.
type Stream struct {
	Poll      PollFunc
	Interval  time.Duration
	Heartbeat time.Duration
	Sink      Sink

	// Redact scrubs poll error messages. Nil leaves them unchanged.
	Redact func(string) string
	Logger *slog.Logger

	newTicker func(time.Duration) ticker
}

// Run drives the stream until ctx is done or the sink fails. Both tickers
// are stopped before Run returns. A poll still running at that point
// finishes in the background and its result is dropped.
func (s *Stream) Run(ctx context.Context) error {
	newTicker := s.newTicker
	if newTicker == nil {
		newTicker = newRealTicker
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = HeartbeatInterval
	}

	pollTick := newTicker(interval)
	defer pollTick.Stop()
	hbTick := newTicker(heartbeat)
	defer hbTick.Stop()

	// Buffered so an abandoned poll can always deliver and exit.
	results := make(chan pollResult, 1)
	pollCtx := context.WithoutCancel(ctx)
	start := func() {
		go func() {
			lines, err := s.Poll(pollCtx)
			results <- pollResult{lines: lines, err: err}
		}()
	}

	inFlight, pending := true, false
	start()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-pollTick.Chan():
			if inFlight {
				pending = true
				continue
			}
			inFlight = true
			start()

		case res := <-results:
			if err := s.Sink.Send(s.toEvent(res)); err != nil {
				return err
			}
			inFlight = false
			if pending {
				pending = false
				inFlight = true
				start()
			}

		case <-hbTick.Chan():
			if err := s.Sink.Send(Event{Name: EventHeartbeat, Data: struct{}{}}); err != nil {
				return err
			}
		}
	}
}

func (s *Stream) toEvent(res pollResult) Event {
	if res.err == nil {
		lines := res.lines
		if lines == nil {
			lines = []string{}
		}
		return Event{Name: EventLogs, Data: LogsData{Lines: lines}}
	}
	msg := res.err.Error()
	if s.Redact != nil {
		msg = s.Redact(msg)
	}
	if s.Logger != nil {
		s.Logger.Debug("log poll failed", "error", msg)
	}
	return Event{Name: EventError, Data: ErrorData{Message: msg}}
}
