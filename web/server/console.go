package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "warning", "error"
}

// consoleHub fans messages out to the consoles of active renders
type consoleHub struct {
	mu          sync.Mutex
	subscribers map[chan ConsoleMessage]struct{}
}

// ConsoleHandler is a slog.Handler that forwards records to subscribed web
// consoles and to a base handler for the server log. Sends never block: a
// full console drops the message.
type ConsoleHandler struct {
	hub   *consoleHub
	base  slog.Handler
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewConsoleHandler creates a handler that forwards records at or above level
// to web consoles. base may be nil.
func NewConsoleHandler(base slog.Handler, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{
		hub:   &consoleHub{subscribers: make(map[chan ConsoleMessage]struct{})},
		base:  base,
		level: level,
	}
}

// Subscribe registers a console that receives messages until Unsubscribe
func (h *ConsoleHandler) Subscribe(buffer int) chan ConsoleMessage {
	ch := make(chan ConsoleMessage, buffer)
	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	h.hub.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch. The channel is not closed.
func (h *ConsoleHandler) Unsubscribe(ch chan ConsoleMessage) {
	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	delete(h.hub.subscribers, ch)
}

func (h *ConsoleHandler) consoleEnabled(level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.consoleEnabled(level) || (h.base != nil && h.base.Enabled(ctx, level))
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.consoleEnabled(r.Level) {
		h.broadcast(ConsoleMessage{
			Message:   h.format(r),
			Timestamp: r.Time,
			Level:     levelName(r.Level),
		})
	}
	if h.base != nil && h.base.Enabled(ctx, r.Level) {
		return h.base.Handle(ctx, r)
	}
	return nil
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	if h.base != nil {
		clone.base = h.base.WithAttrs(attrs)
	}
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	if h.base != nil {
		clone.base = h.base.WithGroup(name)
	}
	return &clone
}

func (h *ConsoleHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

// format renders the message followed by key=value pairs
func (h *ConsoleHandler) format(r slog.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Resolve())
	}
	r.Attrs(func(a slog.Attr) bool {
		a = h.qualify(a)
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Resolve())
		return true
	})
	return sb.String()
}

func (h *ConsoleHandler) broadcast(msg ConsoleMessage) {
	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	for ch := range h.hub.subscribers {
		select {
		case ch <- msg:
		default:
			// Channel full, skip (don't block)
		}
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
