package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionBookings = "calendar_events"

// BookingStore implements out.CalendarStore. The unique compound index on
// (start_utc, end_utc) is what serialises concurrent bookings of one slot.
type BookingStore struct {
	collection *mongo.Collection
}

func NewBookingStore(db *mongo.Database) *BookingStore {
	return &BookingStore{collection: db.Collection(collectionBookings)}
}

var _ out.CalendarStore = (*BookingStore)(nil)

// EnsureIndexes must run before the store takes writes.
func (s *BookingStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "start_utc", Value: 1}, {Key: "end_utc", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_slot"),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_utc", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type bookingDocument struct {
	ID               string    `bson:"_id"`
	ExternalID       string    `bson:"event_id,omitempty"`
	OwnerID          string    `bson:"user_id"`
	Title            string    `bson:"title"`
	StartUTC         time.Time `bson:"start_utc"`
	EndUTC           time.Time `bson:"end_utc"`
	OriginalTimezone string    `bson:"original_timezone"`
	Status           string    `bson:"status"`
	Link             string    `bson:"html_link,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
}

func toDocument(b *domain.Booking) *bookingDocument {
	return &bookingDocument{
		ID:               b.ID,
		ExternalID:       b.ExternalID,
		OwnerID:          b.OwnerID,
		Title:            b.Title,
		StartUTC:         b.StartUTC.UTC(),
		EndUTC:           b.EndUTC.UTC(),
		OriginalTimezone: b.OriginalTimezone,
		Status:           string(b.Status),
		Link:             b.Link,
		CreatedAt:        b.CreatedAt.UTC(),
	}
}

func (d *bookingDocument) toEntity() *domain.Booking {
	return &domain.Booking{
		ID:               d.ID,
		ExternalID:       d.ExternalID,
		OwnerID:          d.OwnerID,
		Title:            d.Title,
		StartUTC:         d.StartUTC.UTC(),
		EndUTC:           d.EndUTC.UTC(),
		OriginalTimezone: d.OriginalTimezone,
		Status:           domain.BookingStatus(d.Status),
		Link:             d.Link,
		CreatedAt:        d.CreatedAt.UTC(),
	}
}

func (s *BookingStore) Insert(ctx context.Context, booking *domain.Booking) (string, error) {
	doc := toDocument(booking)
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", out.ErrDuplicateSlot
		}
		return "", fmt.Errorf("insert booking: %w", err)
	}
	return doc.ID, nil
}

func (s *BookingStore) FindOverlapping(ctx context.Context, window domain.TimeWindow, excludeID string) (*domain.Booking, error) {
	return s.findOne(ctx, overlapFilter(window, excludeID))
}

// overlapFilter matches live bookings intersecting the half-open window.
func overlapFilter(window domain.TimeWindow, excludeID string) bson.M {
	filter := bson.M{
		"start_utc": bson.M{"$lt": window.End.UTC()},
		"end_utc":   bson.M{"$gt": window.Start.UTC()},
		"status":    bson.M{"$in": bson.A{string(domain.BookingPending), string(domain.BookingConfirmed)}},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

func (s *BookingStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Booking, error) {
	if externalID == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"event_id": externalID})
}

func (s *BookingStore) FindByOwnerInRange(ctx context.Context, ownerID string, start, end *time.Time) ([]*domain.Booking, error) {
	filter := bson.M{"user_id": ownerID}
	rng := bson.M{}
	if start != nil {
		rng["$gte"] = start.UTC()
	}
	if end != nil {
		rng["$lte"] = end.UTC()
	}
	if len(rng) > 0 {
		filter["start_utc"] = rng
	}
	return s.find(ctx, filter)
}

func (s *BookingStore) FindStartingBetween(ctx context.Context, start, end time.Time) ([]*domain.Booking, error) {
	return s.find(ctx, bson.M{"start_utc": bson.M{"$gte": start.UTC(), "$lt": end.UTC()}})
}

func (s *BookingStore) Confirm(ctx context.Context, id, externalID, link string) error {
	update := bson.M{"$set": bson.M{
		"event_id":  externalID,
		"html_link": link,
		"status":    string(domain.BookingConfirmed),
	}}
	res, err := s.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("confirm booking: %w", err)
	}
	if res.MatchedCount == 0 {
		return out.ErrBookingNotFound
	}
	return nil
}

func (s *BookingStore) UpdateFields(ctx context.Context, externalID string, patch out.BookingPatch) error {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.StartUTC != nil {
		set["start_utc"] = patch.StartUTC.UTC()
	}
	if patch.EndUTC != nil {
		set["end_utc"] = patch.EndUTC.UTC()
	}
	if len(set) == 0 {
		return nil
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"event_id": externalID}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return out.ErrDuplicateSlot
		}
		return fmt.Errorf("update booking: %w", err)
	}
	if res.MatchedCount == 0 {
		return out.ErrBookingNotFound
	}
	return nil
}

func (s *BookingStore) Delete(ctx context.Context, externalID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"event_id": externalID}); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

func (s *BookingStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	return nil
}

func (s *BookingStore) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{
		"status":     string(domain.BookingPending),
		"created_at": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale pending bookings: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *BookingStore) findOne(ctx context.Context, filter bson.M) (*domain.Booking, error) {
	var doc bookingDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return doc.toEntity(), nil
}

func (s *BookingStore) find(ctx context.Context, filter bson.M) ([]*domain.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_utc", Value: 1}})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}

	result := make([]*domain.Booking, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toEntity())
	}
	return result, nil
}
