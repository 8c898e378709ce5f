package logstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned by Client.Run while another Run is active.
var ErrAlreadyRunning = errors.New("logstream: client already running")

// ErrUnauthorized is returned when the server rejects the token. It is not
// retried.
var ErrUnauthorized = errors.New("logstream: unauthorized")

// Backoff computes reconnect delays: Initial doubled per attempt, capped
// at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when a Client has a zero Backoff.
var DefaultBackoff = Backoff{Initial: 1200 * time.Millisecond, Max: 8 * time.Second}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		b = DefaultBackoff
	}
	d := b.Initial
	for range max(attempt, 0) {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// State is the client's connection state.
type State int

// Client states.
const (
	StateConnecting State = iota
	StateStreaming
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

// Message is an event received by the Client. Data is the raw JSON payload.
type Message struct {
	Name string
	Data json.RawMessage
}

// Client follows a log stream, reconnecting with backoff. The attempt
// counter resets only once a connection is established (a 200 response
// with an event-stream content type), not when individual events arrive.
type Client struct {
	URL     string
	Token   string
	HTTP    *http.Client
	Backoff Backoff

	OnMessage func(Message)
	// OnState is called on every transition; attempt is the backoff
	// attempt about to be waited for (StateBackoff only).
	OnState func(s State, attempt int, delay time.Duration)
	Logger  *slog.Logger

	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) state(s State, attempt int, delay time.Duration) {
	if c.OnState != nil {
		c.OnState(s, attempt, delay)
	}
}

// Run connects and follows the stream until ctx is done (returning nil) or
// the server rejects the credentials. Only one Run may be active per
// Client.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	attempt := 0
	for {
		c.state(StateConnecting, attempt, 0)
		err := c.stream(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		delay := c.Backoff.Delay(attempt)
		if c.Logger != nil {
			c.Logger.Debug("log stream disconnected", "error", err, "retry_in", delay)
		}
		c.state(StateBackoff, attempt, delay)
		attempt++
		if sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// stream performs one connection. established is called once the response
// is accepted.
func (c *Client) stream(ctx context.Context, established func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("logstream: status %d", resp.StatusCode)
	case !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"):
		return fmt.Errorf("logstream: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	established()
	c.state(StateStreaming, 0, 0)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var name string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if name != "" || data.Len() > 0 {
				c.dispatch(name, data.String())
			}
			name = ""
			data.Reset()
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("logstream: stream closed")
}

func (c *Client) dispatch(name, data string) {
	if name == "" {
		name = "message"
	}
	if c.OnMessage != nil {
		c.OnMessage(Message{Name: name, Data: json.RawMessage(strings.TrimSpace(data))})
	}
}
