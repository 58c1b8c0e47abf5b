// Package dispatch – pipeline.go is the inbound message sink: every
// event first fans out to the auto-behavior observers, then enters the
// command path if it carries text and passes the authorization gate.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// Event is the view handed to observers. Text carries the normalized
// payload when HasText is set.
type Event struct {
	Conn    transport.Conn
	Msg     transport.Message
	Text    string
	HasText bool
}

// Observer receives every inbound event, including ones that fail the
// command gate. Observers must not block for long; they run on the
// dispatch goroutine of their event.
type Observer interface {
	// Name identifies the observer in logs.
	Name() string

	// OnMessage handles one inbound event. Errors are logged and
	// otherwise ignored.
	OnMessage(ctx context.Context, evt Event) error
}

// Pipeline is the per-process message sink shared by all sessions.
type Pipeline struct {
	gate      *Gate
	router    *Router
	observers []Observer
	logger    *slog.Logger
}

// NewPipeline assembles the inbound pipeline.
func NewPipeline(gate *Gate, router *Router, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gate:   gate,
		router: router,
		logger: logger.With("component", "pipeline"),
	}
}

// AddObserver appends observers. Not safe to call once messages flow.
func (p *Pipeline) AddObserver(obs ...Observer) {
	p.observers = append(p.observers, obs...)
}

// HandleMessage implements the session message sink.
func (p *Pipeline) HandleMessage(ctx context.Context, conn transport.Conn, msg transport.Message) {
	text, hasText := transport.Normalize(msg.Raw)

	evt := Event{Conn: conn, Msg: msg, Text: text, HasText: hasText}
	for _, obs := range p.observers {
		p.observe(ctx, obs, evt)
	}

	// Status broadcast posts are observer-only territory.
	if msg.IsStatus {
		return
	}
	if !hasText || text == "" {
		return
	}
	if p.gate != nil && !p.gate.Allow(msg, conn.SelfLID()) {
		return
	}

	c := &Context{
		Conn:       conn,
		AccountID:  conn.AccountID(),
		Chat:       msg.Chat,
		Sender:     msg.Sender,
		SenderName: msg.PushName,
		MessageID:  msg.ID,
		IsGroup:    msg.IsGroup,
		IsFromSelf: msg.IsFromMe,
		Text:       text,
	}
	if p.gate != nil {
		c.IsOwner = msg.IsFromMe || p.gate.IsOwner(msg.Sender)
	}
	p.router.Dispatch(ctx, c)
}

// observe runs one observer, containing panics so a broken behavior can
// never stall message handling for the others.
func (p *Pipeline) observe(ctx context.Context, obs Observer, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("observer panic", "observer", obs.Name(), "panic", rec)
		}
	}()
	if err := obs.OnMessage(ctx, evt); err != nil {
		p.logger.Error("observer failed", "observer", obs.Name(), "error", err)
	}
}
