package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifier/pkg/logger"
)

// Default lifecycle windows for maintenance sweeps.
const (
	DefaultIdleWindow      = 30 * 24 * time.Hour
	DefaultNeverUsedWindow = 7 * 24 * time.Hour
)

// Registry owns the device token lifecycle: one authoritative active token
// per (user, platform), global token uniqueness, and idle-token retirement.
type Registry struct {
	storage Storage
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for the Registry.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new device token registry.
func NewRegistry(storage Storage, opts ...RegistryOption) (*Registry, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	r := &Registry{
		storage: storage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register records a push token for a user. It is idempotent: re-registering
// the same token for the same user refreshes its last-used timestamp. A new
// token on a platform that already has an active one deactivates the older
// token. A token string owned by a different user is re-homed to the caller,
// since tokens identify app installs, not accounts.
func (r *Registry) Register(ctx context.Context, userID, token string, platform Platform, meta Meta) (*Token, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if token == "" {
		return nil, ErrEmptyToken
	}
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}

	now := time.Now()

	existing, err := r.storage.FindByToken(ctx, token)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if existing != nil {
		if existing.UserID == userID {
			if err := r.storage.Touch(ctx, token, now); err != nil {
				return nil, fmt.Errorf("failed to refresh token: %w", err)
			}
			existing.LastUsedAt = &now
			existing.IsActive = true
			return existing, nil
		}

		// Token re-issued to a different account after an app reinstall.
		// The stale ownership record is dropped and recreated below.
		r.logger.InfoContext(ctx, "re-homing device token to new owner",
			slog.String("previous_user_id", existing.UserID),
			logger.UserID(userID),
			slog.String("platform", string(platform)))
		if err := r.storage.Delete(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to delete stale token record: %w", err)
		}
	}

	// One authoritative active token per user and platform.
	deactivated, err := r.storage.DeactivateOthers(ctx, userID, platform, token)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate superseded tokens: %w", err)
	}
	if deactivated > 0 {
		r.logger.DebugContext(ctx, "deactivated superseded device tokens",
			logger.UserID(userID),
			slog.String("platform", string(platform)),
			slog.Int64("count", deactivated))
	}

	// LastUsedAt stays nil until the first successful send touches the
	// token; the never-used sweep keys off that.
	t := &Token{
		UserID:     userID,
		Token:      token,
		Platform:   platform,
		IsActive:   true,
		UserAgent:  meta.UserAgent,
		AppVersion: meta.AppVersion,
		CreatedAt:  now,
	}
	if err := r.storage.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	r.logger.InfoContext(ctx, "device token registered",
		logger.UserID(userID),
		slog.String("platform", string(platform)))
	return t, nil
}

// Unregister removes a token owned by the user. Returns false when the token
// does not exist or belongs to someone else.
func (r *Registry) Unregister(ctx context.Context, userID, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}

	existing, err := r.storage.FindByToken(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up token: %w", err)
	}
	if existing.UserID != userID {
		return false, nil
	}

	if err := r.storage.Delete(ctx, token); err != nil {
		return false, fmt.Errorf("failed to delete token: %w", err)
	}
	return true, nil
}

// ListActive returns all active tokens for the user.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]Token, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	return r.storage.FindActive(ctx, userID)
}

// Deactivate retires a single token, typically after the push transport
// reported it as permanently invalid. Safe to call concurrently: flipping
// an already inactive token is a no-op.
func (r *Registry) Deactivate(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := r.storage.Deactivate(ctx, token); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	return nil
}

// Touch refreshes the last-used timestamp after a successful send.
func (r *Registry) Touch(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := r.storage.Touch(ctx, token, time.Now()); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// SweepIdle retires active tokens not used for the idle window.
func (r *Registry) SweepIdle(ctx context.Context) (int64, error) {
	count, err := r.storage.DeactivateIdleSince(ctx, time.Now().Add(-DefaultIdleWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idle tokens: %w", err)
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "deactivated idle device tokens", slog.Int64("count", count))
	}
	return count, nil
}

// SweepNeverUsed retires active tokens that were registered but never used
// within the grace window.
func (r *Registry) SweepNeverUsed(ctx context.Context) (int64, error) {
	count, err := r.storage.DeactivateNeverUsedBefore(ctx, time.Now().Add(-DefaultNeverUsedWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep never-used tokens: %w", err)
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "deactivated never-used device tokens", slog.Int64("count", count))
	}
	return count, nil
}
