package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"sports-registration/internal/flow"
	"sports-registration/internal/metrics"
	"sports-registration/internal/model"
	"sports-registration/internal/session"
)

const (
	TextSaveFailed   = "⚠️ We could not save your registration. Please tap your sport again to retry."
	TextUnknownError = "Something went wrong. Please try again."
)

// RegistrationWriter persists completed registrations.
type RegistrationWriter interface {
	Create(ctx context.Context, reg *model.Registration) error
}

// Reply is what the bot sends back for one input. It never carries internal error detail.
type Reply struct {
	Text string
	Menu flow.Menu
}

// RegistrationService drives the conversation for every user.
type RegistrationService struct {
	sessions      session.Store
	registrations RegistrationWriter
	locks         *session.Locker
	metrics       *metrics.Metrics
	log           zerolog.Logger
	retries       uint64
	newBackOff    func() backoff.BackOff
	now           func() time.Time
}

type Option func(*RegistrationService)

// WithBackOff replaces the retry policy between persist attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *RegistrationService) { s.newBackOff = f }
}

// WithClock sets the time source used to stamp sessions.
func WithClock(now func() time.Time) Option {
	return func(s *RegistrationService) { s.now = now }
}

func NewRegistrationService(sessions session.Store, registrations RegistrationWriter, m *metrics.Metrics, log zerolog.Logger, retries int, opts ...Option) *RegistrationService {
	if retries < 0 {
		retries = 0
	}
	s := &RegistrationService{
		sessions:      sessions,
		registrations: registrations,
		locks:         session.NewLocker(),
		metrics:       m,
		log:           log.With().Str("component", "registration").Logger(),
		retries:       uint64(retries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle applies one user input. The returned Reply is always safe to send, even when err is set.
func (s *RegistrationService) Handle(ctx context.Context, ev flow.Event) (Reply, error) {
	unlock := s.locks.Lock(ev.UserID)
	defer unlock()

	log := s.logger(ctx).With().Int64("user", ev.UserID).Str("event", ev.Kind.String()).Logger()

	cur, err := s.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return Reply{Text: TextUnknownError}, fmt.Errorf("%w: load: %w", model.ErrSessionStore, err)
	}

	tr := flow.Next(cur, ev)
	s.metrics.Inputs.WithLabelValues(ev.Kind.String(), tr.Outcome.String()).Inc()

	switch tr.Outcome {
	case flow.OutcomeNoSession:
		if cur != nil {
			if cur.Step == model.StepDone {
				log.Debug().Msg("clearing finished session")
			} else {
				log.Warn().Str("step", string(cur.Step)).Msg("dropping session with unknown step")
			}
			if err := s.sessions.Delete(ctx, ev.UserID); err != nil {
				return replyFor(tr.Prompt), fmt.Errorf("%w: delete: %w", model.ErrSessionStore, err)
			}
		}
		return replyFor(tr.Prompt), nil
	case flow.OutcomeRejected:
		log.Debug().Str("step", string(tr.Session.Step)).Str("value", ev.Value).Msg("input rejected")
		return replyFor(tr.Prompt), nil
	case flow.OutcomeComplete:
		return s.complete(ctx, log, *cur, tr)
	}

	tr.Session.UpdatedAt = s.now()
	if err := s.sessions.Put(ctx, tr.Session); err != nil {
		return Reply{Text: TextUnknownError}, fmt.Errorf("%w: save: %w", model.ErrSessionStore, err)
	}
	if ev.Kind == flow.EventStart {
		s.metrics.SessionsStarted.Inc()
		log.Info().Msg("registration started")
	} else {
		log.Debug().Str("step", string(tr.Session.Step)).Msg("step advanced")
	}
	return replyFor(tr.Prompt), nil
}

// complete saves the registration and only then forgets the session. On failure the
// stored session is left at the sport step so the user can retry with one click.
func (s *RegistrationService) complete(ctx context.Context, log zerolog.Logger, cur model.Session, tr flow.Transition) (Reply, error) {
	reg := model.NewRegistration(tr.Session)

	attempt := 0
	op := func() error {
		attempt++
		candidate := reg
		if err := s.registrations.Create(ctx, &candidate); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("persist registration failed")
			return err
		}
		reg = candidate
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.retries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		s.metrics.PersistFailures.Inc()
		log.Error().Err(err).Int("attempts", attempt).Msg("registration not saved")
		p := flow.PromptFor(cur)
		return Reply{Text: TextSaveFailed + "\n\n" + p.Text, Menu: p.Menu}, fmt.Errorf("%w: %w", model.ErrPersistRegistration, err)
	}

	s.metrics.Registrations.Inc()
	log.Info().Uint("registration", reg.ID).Str("college_type", reg.CollegeType).Str("sport", reg.Sport).Msg("registration saved")

	if err := s.forget(ctx, log, tr.Session); err != nil {
		return replyFor(tr.Prompt), err
	}
	return replyFor(tr.Prompt), nil
}

// forget removes a saved session. If the delete keeps failing the session is parked at
// StepDone so a repeated click on the old sport menu cannot insert a second row.
func (s *RegistrationService) forget(ctx context.Context, log zerolog.Logger, done model.Session) error {
	op := func() error { return s.sessions.Delete(ctx, done.UserID) }
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.retries), ctx)
	err := backoff.Retry(op, policy)
	if err == nil {
		return nil
	}

	done.Step = model.StepDone
	done.UpdatedAt = s.now()
	if putErr := s.sessions.Put(ctx, done); putErr != nil {
		log.Error().Err(putErr).Msg("could not mark saved session as done")
		return fmt.Errorf("%w: delete: %w", model.ErrSessionStore, errors.Join(err, putErr))
	}
	return fmt.Errorf("%w: delete: %w", model.ErrSessionStore, err)
}

func (s *RegistrationService) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l.With().Str("component", "registration").Logger()
	}
	return s.log
}

func replyFor(p flow.Prompt) Reply {
	return Reply{Text: p.Text, Menu: p.Menu}
}
