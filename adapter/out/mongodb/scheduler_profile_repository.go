package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const collectionUsers = "users"

type ProfileRepository struct {
	collection *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{collection: db.Collection(collectionUsers)}
}

var _ out.ProfileRepository = (*ProfileRepository)(nil)

type profileDocument struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Timezone  string    `bson:"timezone,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var doc profileDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &domain.Profile{
		ID:        doc.ID,
		Email:     doc.Email,
		Timezone:  doc.Timezone,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (r *ProfileRepository) UpdateTimezone(ctx context.Context, userID, timezone string) error {
	update := bson.M{"$set": bson.M{"timezone": timezone, "updated_at": time.Now().UTC()}}
	res, err := r.collection.UpdateByID(ctx, userID, update)
	if err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	if res.MatchedCount == 0 {
		return out.ErrProfileNotFound
	}
	return nil
}
