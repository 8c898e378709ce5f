// Package events keeps the append-only JSONL record of user-visible
// actions: profile changes, gateway lifecycle calls, macro runs, secret
// rotation. Payloads are redacted before they touch the disk.
package events

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawdesk/clawdesk/internal/security"
)

// Event types written by the server.
const (
	TypeConfigChanged   = "config.changed"
	TypeConfigInvalid   = "config.invalid"
	TypeConfigRestored  = "config.restored"
	TypeProfileSaved    = "profile.saved"
	TypeProfileActive   = "profile.activated"
	TypeProfileDeleted  = "profile.deleted"
	TypeGatewayAction   = "gateway.action"
	TypeAgentChanged    = "agent.changed"
	TypeSkillToggled    = "skill.toggled"
	TypeMacroRun        = "macro.run"
	TypeMacroStepError  = "macro.step.error"
	TypeMacroSaved      = "macro.saved"
	TypeSecretRotated   = "secret.rotated"
	TypeUsageRecorded   = "usage.recorded"
	TypeOpenClawCommand = "openclaw.command"
)

// RotateSize is the file size at which the log is renamed aside.
const RotateSize = 1 << 20

// MaxTail bounds Tail.
const MaxTail = 500

// Record is one line of the event log.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
}

// Logger appends records to a JSONL file.
type Logger struct {
	path     string
	redactor *security.Redactor
	now      func() time.Time
	entropy  io.Reader

	mu sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger returns a Logger writing to path. A nil redactor uses the
// package default patterns.
func NewLogger(path string, redactor *security.Redactor, opts ...Option) *Logger {
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	l := &Logger{
		path:     path,
		redactor: redactor,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Path returns the active log file.
func (l *Logger) Path() string { return l.path }

// Log appends one record. The payload is redacted; the caller's value is
// not modified.
func (l *Logger) Log(typ string, payload any) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), l.entropy)
	if err != nil {
		return Record{}, fmt.Errorf("events: id: %w", err)
	}
	rec := Record{
		ID:        id.String(),
		Timestamp: now,
		Type:      typ,
		Payload:   l.redactor.RedactObject(payload),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("events: encoding: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return Record{}, fmt.Errorf("events: directory: %w", err)
	}
	if err := l.rotateLocked(now); err != nil {
		return Record{}, err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Record{}, fmt.Errorf("events: open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("events: write: %w", err)
	}
	return rec, nil
}

// rotateLocked renames the log to <path>.<unixms>.bak once it has reached
// RotateSize.
func (l *Logger) rotateLocked(now time.Time) error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < RotateSize {
		return nil
	}
	aside := l.path + "." + strconv.FormatInt(now.UnixMilli(), 10) + ".bak"
	if err := os.Rename(l.path, aside); err != nil {
		return fmt.Errorf("events: rotate: %w", err)
	}
	return nil
}

// Tail returns up to limit most recent records, oldest first. Lines that
// do not decode are skipped. limit is clamped to [1, MaxTail].
func (l *Logger) Tail(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, MaxTail)

	l.mu.Lock()
	raw, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("events: read: %w", err)
	}

	var out []Record
	for line := range bytes.Lines(raw) {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Type == "" {
			continue
		}
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}
