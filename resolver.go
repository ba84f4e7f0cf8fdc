package notifier

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
)

// eligibleRoles applies the structural fan-out exclusions. Stock alerts
// never go to the merchant role regardless of what the producer asked for.
func eligibleRoles(typ notification.Type, roles []string) []string {
	if typ != notification.TypeLowStock && typ != notification.TypeOutOfStock {
		return roles
	}
	return slices.DeleteFunc(slices.Clone(roles), func(r string) bool {
		return r == RoleMerchant
	})
}

// resolveTemplate expands a role-targeted template into one persisted copy
// per matching active user and hands each copy to delivery. The template
// itself never touches the queue: it ends sent after a successful fan-out,
// or failed when nobody is eligible to receive it.
func (s *Service) resolveTemplate(ctx context.Context, tmpl *notification.Notification) {
	roles := eligibleRoles(tmpl.Type, tmpl.TargetRoles)

	var users []User
	if len(roles) > 0 {
		var err error
		users, err = s.directory.ListActiveByRoles(ctx, roles)
		if err != nil {
			s.failTemplate(ctx, tmpl, "DIRECTORY_LOOKUP_FAILED", err.Error())
			return
		}
	}

	copies := s.createCopies(ctx, tmpl, users)
	if len(copies) == 0 {
		s.failTemplate(ctx, tmpl, "NO_ELIGIBLE_RECIPIENTS", "no eligible recipients")
		return
	}

	for i := range copies {
		if err := s.deliver(ctx, &copies[i]); err != nil {
			s.logger.ErrorContext(ctx, "failed to hand fan-out copy to delivery",
				logger.NotificationID(copies[i].ID),
				logger.RecipientID(copies[i].RecipientID),
				logger.Error(err))
		}
	}

	if _, err := s.store.UpdateStatus(ctx, tmpl.ID, notification.StatusSent, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to close fan-out template",
			logger.NotificationID(tmpl.ID),
			logger.Error(err))
	}
	tmpl.Status = notification.StatusSent

	s.logger.InfoContext(ctx, "template fanned out",
		logger.NotificationID(tmpl.ID),
		logger.BatchID(tmpl.BatchID),
		slog.String("type", string(tmpl.Type)),
		slog.Int("recipients", len(copies)))
}

// createCopies persists one recipient-bound copy per user, absorbing
// duplicates from flaky producers within the dedup window.
func (s *Service) createCopies(ctx context.Context, tmpl *notification.Notification, users []User) []notification.Notification {
	since := time.Now().Add(-s.dedupWindow)
	copies := make([]notification.Notification, 0, len(users))
	for _, u := range users {
		dups, err := s.store.FindRecentDuplicates(ctx, tmpl.Type, tmpl.Title, tmpl.Message, u.ID, since)
		if err == nil && len(dups) > 0 {
			s.logger.DebugContext(ctx, "absorbed duplicate fan-out copy",
				logger.RecipientID(u.ID),
				slog.String("type", string(tmpl.Type)))
			continue
		}

		cp := *tmpl
		cp.ID = uuid.New()
		cp.RecipientID = u.ID
		cp.TargetRoles = nil
		cp.Status = notification.StatusPending
		cp.CreatedAt = time.Now()
		if err := s.store.Create(ctx, &cp); err != nil {
			s.logger.ErrorContext(ctx, "failed to create fan-out copy",
				logger.RecipientID(u.ID),
				logger.Error(err))
			continue
		}
		copies = append(copies, cp)
	}
	return copies
}

func (s *Service) failTemplate(ctx context.Context, tmpl *notification.Notification, code, message string) {
	if _, err := s.store.UpdateStatus(ctx, tmpl.ID, notification.StatusFailed, &notification.ErrorInfo{
		Code:    code,
		Message: message,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark template failed",
			logger.NotificationID(tmpl.ID),
			logger.Error(err))
		return
	}
	tmpl.Status = notification.StatusFailed
	tmpl.ErrorCode = code
	tmpl.ErrorMessage = message

	s.logger.WarnContext(ctx, "template fan-out failed",
		logger.NotificationID(tmpl.ID),
		slog.String("type", string(tmpl.Type)),
		slog.String("code", code),
		slog.String("message", message))
}
