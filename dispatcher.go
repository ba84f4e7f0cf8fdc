package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/realtime"
	"github.com/dmitrymomot/notifier/pkg/sender"
)

type dispatchFunc func(ctx context.Context, job *queue.Job) error

// buildDispatchTable registers the channel handlers once at construction.
// Routing a job is a table lookup, not a switch, so individual handlers
// stay testable in isolation.
func (s *Service) buildDispatchTable() {
	s.dispatch = map[notification.Channel]dispatchFunc{
		notification.ChannelInApp:     s.dispatchInApp,
		notification.ChannelDashboard: s.dispatchInApp,
		notification.ChannelPush:      s.dispatchPush,
		notification.ChannelSMS:       s.dispatchSMS,
		notification.ChannelEmail:     s.dispatchEmail,
	}
}

// Dispatcher adapts the service's channel handlers to the queue worker.
// Wire it with queue.NewWorker.
func (s *Service) Dispatcher() queue.Dispatcher {
	return queue.DispatcherFunc(func(ctx context.Context, job *queue.Job) error {
		handler, ok := s.dispatch[job.Channel]
		if !ok {
			return fmt.Errorf("%w: %s", ErrChannelUnavailable, job.Channel)
		}
		return handler(ctx, job)
	})
}

// jobEvent builds the realtime payload for a queued job, preferring the
// full stored notification over the job's trimmed copy.
func (s *Service) jobEvent(ctx context.Context, job *queue.Job) realtime.Event {
	if n, err := s.store.GetByID(ctx, job.NotificationID); err == nil {
		return realtime.EventFromNotification(n)
	}
	return realtime.Event{
		ID:       job.NotificationID,
		Title:    job.Title,
		Message:  job.Message,
		Priority: job.Priority,
	}
}

// dispatchInApp delivers over the realtime transport. An offline or
// unreachable recipient falls back to push.
func (s *Service) dispatchInApp(ctx context.Context, job *queue.Job) error {
	err := s.realtime.Send(ctx, job.RecipientID, s.jobEvent(ctx, job))
	if err == nil {
		return nil
	}
	if !errors.Is(err, realtime.ErrNotConnected) {
		s.logger.WarnContext(ctx, "realtime delivery failed, falling back to push",
			logger.NotificationID(job.NotificationID),
			logger.Error(err))
	}
	return s.dispatchPush(ctx, job)
}

// dispatchPush fans out to every active device token in parallel. The job
// succeeds when at least one token accepts the message; tokens the
// transport reports as dead are deactivated on the spot. A recipient with
// no usable tokens gets one realtime attempt and then SMS before the job
// is declared failed.
func (s *Service) dispatchPush(ctx context.Context, job *queue.Job) error {
	tokens, err := s.registry.ListActive(ctx, job.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to list device tokens for %s: %w", job.RecipientID, err)
	}
	if len(tokens) == 0 || s.push == nil {
		return s.pushFallback(ctx, job)
	}

	var (
		mu        sync.Mutex
		delivered int
		errs      []error
	)
	var wg sync.WaitGroup
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			sendErr := s.push.Send(ctx, sender.PushMessage{
				Token: tok,
				Title: job.Title,
				Body:  job.Message,
				Data: map[string]string{
					"notification_id": job.NotificationID.String(),
				},
			})
			if sendErr == nil {
				// Mark the token as used so the idle and never-used
				// sweeps see it as live.
				if err := s.registry.Touch(ctx, tok); err != nil {
					s.logger.WarnContext(ctx, "failed to refresh token usage",
						logger.RecipientID(job.RecipientID),
						logger.Error(err))
				}
				mu.Lock()
				delivered++
				mu.Unlock()
				return
			}
			if errors.Is(sendErr, sender.ErrTokenInvalid) {
				// Self-healing registry: a dead token never gets retried.
				if err := s.registry.Deactivate(ctx, tok); err != nil {
					s.logger.ErrorContext(ctx, "failed to deactivate invalid token",
						logger.Error(err))
				} else {
					s.logger.InfoContext(ctx, "deactivated invalid device token",
						logger.RecipientID(job.RecipientID))
				}
			}
			mu.Lock()
			errs = append(errs, sendErr)
			mu.Unlock()
		}(tok.Token)
	}
	wg.Wait()

	if delivered > 0 {
		return nil
	}
	s.logger.ErrorContext(ctx, "push delivery failed on every token",
		logger.NotificationID(job.NotificationID),
		logger.RecipientID(job.RecipientID),
		logger.Errors(errs...))
	return errors.Join(append([]error{ErrAllTokensFailed}, errs...)...)
}

// pushFallback handles a push job for a recipient with no usable device
// tokens: one realtime attempt, then SMS, then give up with a descriptive
// error instead of silently dropping.
func (s *Service) pushFallback(ctx context.Context, job *queue.Job) error {
	if err := s.realtime.Send(ctx, job.RecipientID, s.jobEvent(ctx, job)); err == nil {
		s.logger.DebugContext(ctx, "push fallback delivered over realtime",
			logger.NotificationID(job.NotificationID))
		return nil
	}

	if s.sms != nil {
		phone, err := s.directory.PhoneNumber(ctx, job.RecipientID)
		if err == nil && phone != "" {
			if err := s.sms.Send(ctx, phone, job.Title+": "+job.Message); err == nil {
				s.logger.InfoContext(ctx, "push fallback delivered over sms",
					logger.NotificationID(job.NotificationID))
				return nil
			}
		}
	}
	return ErrAllTokensFailed
}

// dispatchSMS delivers a text message to the recipient's stored phone number.
func (s *Service) dispatchSMS(ctx context.Context, job *queue.Job) error {
	if s.sms == nil {
		return fmt.Errorf("%w: %s", ErrChannelUnavailable, notification.ChannelSMS)
	}
	phone, err := s.directory.PhoneNumber(ctx, job.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up phone number for %s: %w", job.RecipientID, err)
	}
	if phone == "" {
		return fmt.Errorf("%w: user %s", sender.ErrEmptyPhoneNumber, job.RecipientID)
	}
	return s.sms.Send(ctx, phone, job.Title+": "+job.Message)
}

// dispatchEmail delivers a transactional email to the recipient's stored address.
func (s *Service) dispatchEmail(ctx context.Context, job *queue.Job) error {
	if s.email == nil {
		return fmt.Errorf("%w: %s", ErrChannelUnavailable, notification.ChannelEmail)
	}
	to, err := s.directory.Email(ctx, job.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up email for %s: %w", job.RecipientID, err)
	}
	if to == "" {
		return fmt.Errorf("%w: user %s", sender.ErrEmptyRecipient, job.RecipientID)
	}
	return s.email.Send(ctx, to, job.Title, job.Message)
}
