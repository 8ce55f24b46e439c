package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sender posts formatted log lines to the chat platform.
// Implemented by bot.Bot, which relays into the configured log channel.
type Sender interface {
	SendLogMessage(text string)
}

// DiscordHandler is a slog.Handler that mirrors records at or above
// minLevel into a Discord log channel, after passing them to the wrapped
// handler.
type DiscordHandler struct {
	handler  slog.Handler
	sender   Sender
	minLevel slog.Level
	mu       sync.Mutex
	attrs    []slog.Attr
	group    string
}

func NewDiscordHandler(handler slog.Handler, sender Sender, minLevel slog.Level) *DiscordHandler {
	return &DiscordHandler{
		handler:  handler,
		sender:   sender,
		minLevel: minLevel,
		attrs:    make([]slog.Attr, 0),
		group:    "",
	}
}

// Enabled implements slog.Handler.Enabled
func (h *DiscordHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.Handle
func (h *DiscordHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.handler.Handle(ctx, record)
	if err != nil {
		return err
	}

	if record.Level < h.minLevel || h.sender == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var msg string
	if h.group != "" {
		msg = fmt.Sprintf("**%s** `%s.%s`", record.Level.String(), h.group, record.Message)
	} else {
		msg = fmt.Sprintf("**%s** `%s`", record.Level.String(), record.Message)
	}

	for _, attr := range h.attrs {
		msg += fmt.Sprintf("\n%s: `%v`", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		msg += fmt.Sprintf("\n%s: `%v`", attr.Key, attr.Value)
		return true
	})

	h.sender.SendLogMessage(msg)
	return nil
}

// WithAttrs implements slog.Handler.WithAttrs
func (h *DiscordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &DiscordHandler{
		handler:  h.handler.WithAttrs(attrs),
		sender:   h.sender,
		minLevel: h.minLevel,
		attrs:    newAttrs,
		group:    h.group,
	}
}

// WithGroup implements slog.Handler.WithGroup
func (h *DiscordHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &DiscordHandler{
		handler:  h.handler.WithGroup(name),
		sender:   h.sender,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		group:    group,
	}
}
