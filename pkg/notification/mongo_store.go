package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a MongoDB-backed implementation of the Store interface.
// All status transitions are single-document atomic updates: the allowed
// previous statuses are part of the update filter, so a concurrent writer
// can never drive the document along an illegal edge.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a store on top of the given collection.
func NewMongoStore(coll *mongo.Collection) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("collection cannot be nil")
	}
	return &MongoStore{coll: coll}, nil
}

// notificationDoc mirrors Notification with string identifiers, which keeps
// the stored documents readable and avoids driver-specific UUID encodings.
type notificationDoc struct {
	ID               string         `bson:"_id"`
	BatchID          string         `bson:"batch_id,omitempty"`
	Type             Type           `bson:"type"`
	Title            string         `bson:"title"`
	Message          string         `bson:"message"`
	MessageLocalized string         `bson:"message_localized,omitempty"`
	Data             map[string]any `bson:"data,omitempty"`
	Navigation       *Navigation    `bson:"navigation,omitempty"`
	Channel          Channel        `bson:"channel"`
	Priority         Priority       `bson:"priority"`
	Category         string         `bson:"category,omitempty"`
	TargetRoles      []string       `bson:"target_roles,omitempty"`
	RecipientID      string         `bson:"recipient_id,omitempty"`
	Status           Status         `bson:"status"`
	SentAt           *time.Time     `bson:"sent_at,omitempty"`
	DeliveredAt      *time.Time     `bson:"delivered_at,omitempty"`
	ReadAt           *time.Time     `bson:"read_at,omitempty"`
	ClickedAt        *time.Time     `bson:"clicked_at,omitempty"`
	FailedAt         *time.Time     `bson:"failed_at,omitempty"`
	RetryCount       int8           `bson:"retry_count"`
	NextRetryAt      *time.Time     `bson:"next_retry_at,omitempty"`
	ErrorCode        string         `bson:"error_code,omitempty"`
	ErrorMessage     string         `bson:"error_message,omitempty"`
	OpenCount        int            `bson:"open_count"`
	ClickCount       int            `bson:"click_count"`
	Clicks           []Click        `bson:"clicks,omitempty"`
	CreatedBy        string         `bson:"created_by,omitempty"`
	SystemGenerated  bool           `bson:"system_generated"`
	ScheduledFor     *time.Time     `bson:"scheduled_for,omitempty"`
	CreatedAt        time.Time      `bson:"created_at"`
}

func toDoc(n *Notification) *notificationDoc {
	doc := &notificationDoc{
		ID:               n.ID.String(),
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		MessageLocalized: n.MessageLocalized,
		Data:             n.Data,
		Navigation:       n.Navigation,
		Channel:          n.Channel,
		Priority:         n.Priority,
		Category:         n.Category,
		TargetRoles:      n.TargetRoles,
		RecipientID:      n.RecipientID,
		Status:           n.Status,
		SentAt:           n.SentAt,
		DeliveredAt:      n.DeliveredAt,
		ReadAt:           n.ReadAt,
		ClickedAt:        n.ClickedAt,
		FailedAt:         n.FailedAt,
		RetryCount:       n.RetryCount,
		NextRetryAt:      n.NextRetryAt,
		ErrorCode:        n.ErrorCode,
		ErrorMessage:     n.ErrorMessage,
		OpenCount:        n.OpenCount,
		ClickCount:       n.ClickCount,
		Clicks:           n.Clicks,
		CreatedBy:        n.CreatedBy,
		SystemGenerated:  n.SystemGenerated,
		ScheduledFor:     n.ScheduledFor,
		CreatedAt:        n.CreatedAt,
	}
	if n.BatchID != uuid.Nil {
		doc.BatchID = n.BatchID.String()
	}
	return doc
}

func fromDoc(doc *notificationDoc) (*Notification, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed notification id %q: %w", doc.ID, err)
	}
	batchID := uuid.Nil
	if doc.BatchID != "" {
		if batchID, err = uuid.Parse(doc.BatchID); err != nil {
			return nil, fmt.Errorf("malformed batch id %q: %w", doc.BatchID, err)
		}
	}
	return &Notification{
		ID:               id,
		BatchID:          batchID,
		Type:             doc.Type,
		Title:            doc.Title,
		Message:          doc.Message,
		MessageLocalized: doc.MessageLocalized,
		Data:             doc.Data,
		Navigation:       doc.Navigation,
		Channel:          doc.Channel,
		Priority:         doc.Priority,
		Category:         doc.Category,
		TargetRoles:      doc.TargetRoles,
		RecipientID:      doc.RecipientID,
		Status:           doc.Status,
		SentAt:           doc.SentAt,
		DeliveredAt:      doc.DeliveredAt,
		ReadAt:           doc.ReadAt,
		ClickedAt:        doc.ClickedAt,
		FailedAt:         doc.FailedAt,
		RetryCount:       doc.RetryCount,
		NextRetryAt:      doc.NextRetryAt,
		ErrorCode:        doc.ErrorCode,
		ErrorMessage:     doc.ErrorMessage,
		OpenCount:        doc.OpenCount,
		ClickCount:       doc.ClickCount,
		Clicks:           doc.Clicks,
		CreatedBy:        doc.CreatedBy,
		SystemGenerated:  doc.SystemGenerated,
		ScheduledFor:     doc.ScheduledFor,
		CreatedAt:        doc.CreatedAt,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, n *Notification) error {
	if n == nil {
		return ErrNilNotification
	}
	if n.ID == uuid.Nil {
		return ErrMissingID
	}

	doc := toDoc(n)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *MongoStore) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var doc notificationDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	return fromDoc(&doc)
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]Notification, error) {
	filter := bson.M{}
	if f.RecipientID != "" {
		filter["recipient_id"] = f.RecipientID
	}
	if f.BatchID != uuid.Nil {
		filter["batch_id"] = f.BatchID.String()
	}
	if len(f.Types) > 0 {
		filter["type"] = bson.M{"$in": f.Types}
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.OnlyUnread {
		filter["status"] = bson.M{"$nin": bson.A{StatusRead, StatusClicked}}
	}
	if f.Since != nil {
		filter["created_at"] = bson.M{"$gt": *f.Since}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cur.Close(ctx)

	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]Notification, error) {
	var out []Notification
	for cur.Next(ctx) {
		var doc notificationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		n, err := fromDoc(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errInfo *ErrorInfo) (bool, error) {
	// Read-on-read is idempotent: report success without touching the document.
	if status == StatusRead {
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": id.String(), "status": StatusRead})
		if err == nil && count > 0 {
			return true, nil
		}
	}

	now := time.Now()
	set := bson.M{"status": status}
	if field := statusTimestampField(status); field != "" {
		set[field] = now
	}
	if errInfo != nil {
		set["error_code"] = errInfo.Code
		set["error_message"] = errInfo.Message
	}

	// The transition filter makes validation atomic with the write.
	filter := bson.M{
		"_id":    id.String(),
		"status": bson.M{"$in": allowedPrev(status)},
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing document from a rejected transition.
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return false, fmt.Errorf("failed to check notification %s: %w", id, err)
		}
		if count == 0 {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func statusTimestampField(status Status) string {
	switch status {
	case StatusSent:
		return "sent_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusRead:
		return "read_at"
	case StatusClicked:
		return "clicked_at"
	case StatusFailed:
		return "failed_at"
	}
	return ""
}

func (s *MongoStore) IncrementRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (int8, error) {
	update := bson.M{
		"$inc": bson.M{"retry_count": 1},
	}
	if nextRetryAt != nil {
		update["$set"] = bson.M{"next_retry_at": *nextRetryAt}
	} else {
		update["$unset"] = bson.M{"next_retry_at": ""}
	}

	var doc notificationDoc
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count of %s: %w", id, err)
	}
	return doc.RetryCount, nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	now := time.Now()
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"recipient_id": recipientID,
			"status":       bson.M{"$nin": bson.A{StatusRead, StatusClicked}},
		},
		bson.M{"$set": bson.M{"status": StatusRead, "read_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read for %s: %w", recipientID, err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"recipient_id": recipientID,
		"status":       bson.M{"$nin": bson.A{StatusRead, StatusClicked}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread for %s: %w", recipientID, err)
	}
	return int(count), nil
}

func (s *MongoStore) RecordClick(ctx context.Context, id uuid.UUID, click Click) error {
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now()
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$push": bson.M{"clicks": click},
			"$inc":  bson.M{"click_count": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to record click on %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementOpens(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$inc": bson.M{"open_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment opens on %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	if batchID == uuid.Nil {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"batch_id": batchID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch %s: %w", batchID, err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"status":     bson.M{"$in": bson.A{StatusRead, StatusClicked}},
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{
		"status":        StatusPending,
		"scheduled_for": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find due scheduled notifications: %w", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (s *MongoStore) FindRetryable(ctx context.Context, limit int) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{
		"status":       StatusFailed,
		"retry_count":  bson.M{"$lt": MaxRetries},
		"recipient_id": bson.M{"$exists": true, "$ne": ""},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find retryable notifications: %w", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (s *MongoStore) FindOrphans(ctx context.Context) ([]Notification, error) {
	cur, err := s.coll.Find(ctx, bson.M{
		"status": bson.M{"$in": bson.A{StatusPending, StatusQueued, StatusSending}},
		"$or": bson.A{
			bson.M{"recipient_id": bson.M{"$exists": false}},
			bson.M{"recipient_id": ""},
		},
		"target_roles": bson.M{"$in": bson.A{nil, bson.A{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned notifications: %w", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (s *MongoStore) FindRecentDuplicates(ctx context.Context, typ Type, title, message, recipientID string, since time.Time) ([]Notification, error) {
	cur, err := s.coll.Find(ctx, bson.M{
		"type":         typ,
		"title":        title,
		"message":      message,
		"recipient_id": recipientID,
		"created_at":   bson.M{"$gte": since},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate notifications: %w", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}
