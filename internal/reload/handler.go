package reload

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
)

// EventLog records what the handler observed.
type EventLog interface {
	Log(typ string, payload any) (events.Record, error)
}

// Handler re-validates the config document after a change on disk. It
// never feeds decisions; request handling always re-reads the file.
type Handler struct {
	store    *config.Store
	events   EventLog
	logger   *slog.Logger
	onReload func(*config.Config)

	last [sha256.Size]byte
}

// NewHandler creates a reload handler. onReload, if non-nil, receives every
// document that loads cleanly.
func NewHandler(store *config.Store, evs EventLog, logger *slog.Logger, onReload func(*config.Config)) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: store, events: evs, logger: logger, onReload: onReload}
	if raw, err := os.ReadFile(store.Path); err == nil {
		h.last = sha256.Sum256(raw)
	}
	return h
}

// HandleEvent processes one watcher event. Unchanged content is ignored.
func (h *Handler) HandleEvent(ev Event) {
	if ev.Type == EventRemoved {
		h.logger.Warn("config file removed; defaults are written on next load", "path", ev.ConfigPath)
		return
	}
	raw, err := os.ReadFile(ev.ConfigPath)
	if err != nil {
		h.logger.Warn("reading changed config failed", "path", ev.ConfigPath, "error", err)
		return
	}
	sum := sha256.Sum256(raw)
	if sum == h.last {
		return
	}
	h.last = sum

	cfg, err := config.Parse(raw, h.store.Home)
	if err != nil {
		h.logger.Warn("config file is invalid", "path", ev.ConfigPath, "error", err)
		h.record(events.TypeConfigInvalid, map[string]any{"path": ev.ConfigPath, "error": err.Error()})
		return
	}
	h.logger.Info("config file changed", "path", ev.ConfigPath)
	h.record(events.TypeConfigChanged, map[string]any{"target": "clawdesk", "source": "file"})
	if h.onReload != nil {
		h.onReload(cfg)
	}
}

// Run consumes w until ctx is done.
func (h *Handler) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			h.HandleEvent(ev)
		}
	}
}

func (h *Handler) record(typ string, payload any) {
	if h.events == nil {
		return
	}
	if _, err := h.events.Log(typ, payload); err != nil {
		h.logger.Warn("recording event failed", "type", typ, "error", err)
	}
}
