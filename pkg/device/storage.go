package device

import (
	"context"
	"time"
)

// Storage handles device token persistence. The Registry layers the
// ownership and lifecycle rules on top of these primitives.
type Storage interface {
	// Save inserts a token record.
	Save(ctx context.Context, t *Token) error

	// FindByToken looks up a token record by its globally unique string.
	FindByToken(ctx context.Context, token string) (*Token, error)

	// FindActive returns all active tokens for a user.
	FindActive(ctx context.Context, userID string) ([]Token, error)

	// Touch refreshes the last-used timestamp of a token.
	Touch(ctx context.Context, token string, at time.Time) error

	// Deactivate flips a single token inactive. Idempotent.
	Deactivate(ctx context.Context, token string) error

	// DeactivateOthers flips inactive every active token of the user on
	// the platform except keep. Returns the number deactivated.
	DeactivateOthers(ctx context.Context, userID string, platform Platform, keep string) (int64, error)

	// Delete removes a token record entirely.
	Delete(ctx context.Context, token string) error

	// DeactivateIdleSince flips inactive all active tokens whose last use
	// predates the cutoff. Returns the number deactivated.
	DeactivateIdleSince(ctx context.Context, cutoff time.Time) (int64, error)

	// DeactivateNeverUsedBefore flips inactive all active tokens that
	// were never used and were created before the cutoff.
	DeactivateNeverUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
