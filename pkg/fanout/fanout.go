package fanout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harun/nalar/pkg/events"
	"github.com/rs/zerolog"
)

// EventSink is the durable, append-only destination for every event.
// *eventstore.Store satisfies it.
type EventSink interface {
	Persist(sessionID uuid.UUID, ev events.Event) error
}

// Transport is the best-effort realtime channel. Send returns an error when
// the channel is unusable; the fan-out then abandons forwarding.
type Transport interface {
	Send(ev events.Event) error
}

// Fanout is the single consumer of a run's event queue.
type Fanout struct {
	queue     *events.Queue
	sink      EventSink
	transport Transport
	sessionID uuid.UUID
	logger    zerolog.Logger
	done      chan struct{}
}

// Config holds fan-out construction parameters. Sink and Transport are both
// optional; a missing sink drops events with a warning, a missing transport
// skips forwarding.
type Config struct {
	Queue     *events.Queue
	Sink      EventSink
	Transport Transport
	SessionID uuid.UUID
	Logger    zerolog.Logger
}

// New creates a fan-out for one session's queue.
func New(cfg Config) (*Fanout, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("event queue is required")
	}
	return &Fanout{
		queue:     cfg.Queue,
		sink:      cfg.Sink,
		transport: cfg.Transport,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger.With().Str("session_id", cfg.SessionID.String()).Logger(),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the consumer goroutine. It runs until the queue is closed
// and drained, or ctx is cancelled.
func (f *Fanout) Start(ctx context.Context) {
	go func() {
		defer close(f.done)
		for {
			ev, ok := f.queue.Get(ctx)
			if !ok {
				f.logger.Debug().Msg("Event consumer stopped")
				return
			}
			f.process(ev)
		}
	}()
}

// Wait blocks until the consumer has stopped. Close the queue first to let
// it drain.
func (f *Fanout) Wait() {
	<-f.done
}

func (f *Fanout) process(ev events.Event) {
	if f.sink != nil {
		if err := f.sink.Persist(f.sessionID, ev); err != nil {
			f.logger.Warn().
				Str("event_id", ev.ID).
				Str("type", string(ev.Type)).
				Err(err).
				Msg("Failed to persist event, dropping")
		}
	} else {
		f.logger.Info().
			Str("type", string(ev.Type)).
			Msg("No event sink, skipping event")
	}

	// Client-originated events are not echoed back.
	if ev.Type == events.EventUserMessage || f.transport == nil {
		return
	}

	if err := f.transport.Send(ev); err != nil {
		f.logger.Warn().
			Str("event_id", ev.ID).
			Err(err).
			Msg("Failed to forward event, disabling transport for this run")
		f.transport = nil
	}
}
