package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStorage is a MongoDB-backed Storage implementation. The token string
// is the document key, which makes global token uniqueness a property of the
// collection rather than something the registry has to enforce.
type MongoStorage struct {
	coll *mongo.Collection
}

// NewMongoStorage creates a storage on top of the given collection.
func NewMongoStorage(coll *mongo.Collection) (*MongoStorage, error) {
	if coll == nil {
		return nil, errors.New("collection cannot be nil")
	}
	return &MongoStorage{coll: coll}, nil
}

type tokenDoc struct {
	Token      string     `bson:"_id"`
	UserID     string     `bson:"user_id"`
	Platform   Platform   `bson:"platform"`
	IsActive   bool       `bson:"is_active"`
	UserAgent  string     `bson:"user_agent,omitempty"`
	AppVersion string     `bson:"app_version,omitempty"`
	LastUsedAt *time.Time `bson:"last_used_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
}

func (d *tokenDoc) toToken() *Token {
	return &Token{
		UserID:     d.UserID,
		Token:      d.Token,
		Platform:   d.Platform,
		IsActive:   d.IsActive,
		UserAgent:  d.UserAgent,
		AppVersion: d.AppVersion,
		LastUsedAt: d.LastUsedAt,
		CreatedAt:  d.CreatedAt,
	}
}

func (s *MongoStorage) Save(ctx context.Context, t *Token) error {
	doc := tokenDoc{
		Token:      t.Token,
		UserID:     t.UserID,
		Platform:   t.Platform,
		IsActive:   t.IsActive,
		UserAgent:  t.UserAgent,
		AppVersion: t.AppVersion,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": t.Token},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save device token: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindByToken(ctx context.Context, token string) (*Token, error) {
	var doc tokenDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device token: %w", err)
	}
	return doc.toToken(), nil
}

func (s *MongoStorage) FindActive(ctx context.Context, userID string) ([]Token, error) {
	cur, err := s.coll.Find(ctx, bson.M{"user_id": userID, "is_active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active tokens for %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []Token
	for cur.Next(ctx) {
		var doc tokenDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode device token: %w", err)
		}
		out = append(out, *doc.toToken())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (s *MongoStorage) Touch(ctx context.Context, token string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": token},
		bson.M{"$set": bson.M{"last_used_at": at, "is_active": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch device token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *MongoStorage) Deactivate(ctx context.Context, token string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": token},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate device token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *MongoStorage) DeactivateOthers(ctx context.Context, userID string, platform Platform, keep string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"user_id":   userID,
			"platform":  platform,
			"is_active": true,
			"_id":       bson.M{"$ne": keep},
		},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate superseded tokens for %s: %w", userID, err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStorage) Delete(ctx context.Context, token string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": token})
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *MongoStorage) DeactivateIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"is_active": true, "last_used_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate idle tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStorage) DeactivateNeverUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"is_active":    true,
			"last_used_at": nil,
			"created_at":   bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate never-used tokens: %w", err)
	}
	return res.ModifiedCount, nil
}
