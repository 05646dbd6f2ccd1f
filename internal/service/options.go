package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/queue"
)

const publishTimeout = 2 * time.Second

// settings are the collaborators shared by Ledger and SessionManager.
type settings struct {
	now    func() time.Time
	events EventPublisher
	log    zerolog.Logger
}

// Option configures a Ledger or SessionManager.
type Option func(*settings)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvents sets the publisher for session events.
func WithEvents(p EventPublisher) Option {
	return func(s *settings) {
		if p != nil {
			s.events = p
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.log = l }
}

func newSettings(component string, opts []Option) settings {
	s := settings{now: time.Now, events: nopPublisher{}, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	s.log = s.log.With().Str("component", component).Logger()
	return s
}

// publish sends ev with a bounded timeout that survives request
// cancellation.  Failures are logged only.
func (s settings) publish(ctx context.Context, ev queue.SessionEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Uint64("user_id", ev.UserID).Msg("session event not published")
	}
}
