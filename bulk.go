package notifier

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/logger"
)

// BulkSend broadcasts one notification to an explicit recipient list. The
// work runs in a background worker so large campaigns never sit on the
// producer's request path: the call validates, mints the batch ID, and
// returns immediately. The final tally arrives on the returned channel
// once every recipient has been processed.
func (s *Service) BulkSend(ctx context.Context, params BulkParams) (uuid.UUID, <-chan BulkResult, error) {
	if len(params.TargetUserIDs) == 0 {
		return uuid.Nil, nil, ErrNoRecipients
	}
	if params.Title == "" {
		return uuid.Nil, nil, ErrEmptyTitle
	}
	if params.Message == "" {
		return uuid.Nil, nil, ErrEmptyMessage
	}

	batchID := uuid.New()
	results := make(chan BulkResult, 1)

	// The broadcast outlives the request that triggered it.
	go s.runBulk(context.WithoutCancel(ctx), batchID, params, results)

	return batchID, results, nil
}

// runBulk creates one notification per recipient under the shared batch ID
// and accumulates the tally. Per-recipient failures are recorded, never
// fatal to the rest of the batch.
func (s *Service) runBulk(ctx context.Context, batchID uuid.UUID, params BulkParams, results chan<- BulkResult) {
	res := BulkResult{
		BatchID: batchID,
		Results: make([]BulkItem, 0, len(params.TargetUserIDs)),
	}

	for _, userID := range params.TargetUserIDs {
		item := BulkItem{RecipientID: userID}
		n, err := s.CreateNotification(ctx, CreateParams{
			Type:             params.Type,
			Title:            params.Title,
			Message:          params.Message,
			MessageLocalized: params.MessageLocalized,
			Data:             params.Data,
			Navigation:       params.Navigation,
			Channel:          params.Channel,
			Priority:         params.Priority,
			Category:         params.Category,
			RecipientID:      userID,
			BatchID:          batchID,
			CreatedBy:        params.CreatedBy,
			SystemGenerated:  params.SystemGenerated,
		})
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.NotificationID = n.ID
			res.Sent++
		}
		res.Results = append(res.Results, item)
	}

	s.logger.InfoContext(ctx, "bulk send finished",
		logger.BatchID(batchID),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed))

	results <- res
	close(results)
}
