package main

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/notifier"
)

// userDocument mirrors the relevant fields of the shared users collection.
// The notification service only reads from it.
type userDocument struct {
	ID          string   `bson:"_id"`
	Roles       []string `bson:"roles"`
	Status      string   `bson:"status"`
	PhoneNumber string   `bson:"phone_number,omitempty"`
	Email       string   `bson:"email,omitempty"`
}

// mongoDirectory resolves recipients against the users collection managed
// by the account service.
type mongoDirectory struct {
	coll *mongo.Collection
}

func newMongoDirectory(coll *mongo.Collection) *mongoDirectory {
	return &mongoDirectory{coll: coll}
}

func (d *mongoDirectory) ListActiveByRoles(ctx context.Context, roles []string) ([]notifier.User, error) {
	cursor, err := d.coll.Find(ctx, bson.M{
		"status": "active",
		"roles":  bson.M{"$in": roles},
	})
	if err != nil {
		return nil, fmt.Errorf("list users by roles: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]notifier.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, notifier.User{ID: doc.ID, Roles: doc.Roles})
	}
	return users, nil
}

func (d *mongoDirectory) PhoneNumber(ctx context.Context, userID string) (string, error) {
	doc, err := d.lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	return doc.PhoneNumber, nil
}

func (d *mongoDirectory) Email(ctx context.Context, userID string) (string, error) {
	doc, err := d.lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	return doc.Email, nil
}

func (d *mongoDirectory) lookup(ctx context.Context, userID string) (*userDocument, error) {
	var doc userDocument
	err := d.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// An unknown user has no contact details on file, which the
		// service treats as a skipped fallback rather than a failure.
		return &userDocument{ID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return &doc, nil
}
