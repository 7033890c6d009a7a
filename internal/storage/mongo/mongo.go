// Package mongo is a storage.Store on MongoDB. Profiles and credentials are keyed by
// a unique user_id index; subscriptions carry their own _id.
package mongo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

type Store struct {
	client           *mongo.Client
	db               *mongo.Database
	profilesCol      *mongo.Collection
	subscriptionsCol *mongo.Collection
	credentialsCol   *mongo.Collection
}

func New(ctx context.Context, mongoURI, dbName string) (*Store, error) {
	const op = "storage/mongo/New"

	opts := options.Client().ApplyURI(mongoURI)
	if wantsTLS(mongoURI) {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:           client,
		db:               db,
		profilesCol:      db.Collection("profiles"),
		subscriptionsCol: db.Collection("push_subscriptions"),
		credentialsCol:   db.Collection("credentials"),
	}

	// Best-effort indexes.
	_, _ = s.profilesCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	_, _ = s.credentialsCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	_, _ = s.subscriptionsCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})

	return s, nil
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, profile *models.Profile) error {
	_, err := s.profilesCol.ReplaceOne(ctx,
		bson.M{"user_id": profile.ID},
		profile,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	cur, err := s.subscriptionsCol.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	subs := make([]models.PushSubscription, 0)
	if err := cur.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// ReplaceSubscription is delete-then-insert without a transaction; standalone servers
// do not support multi-document transactions.
func (s *Store) ReplaceSubscription(ctx context.Context, sub *models.PushSubscription) error {
	if _, err := s.subscriptionsCol.DeleteMany(ctx, bson.M{"user_id": sub.UserID}); err != nil {
		return err
	}
	_, err := s.subscriptionsCol.InsertOne(ctx, sub)
	return err
}

func (s *Store) Credentials(ctx context.Context, userID string) (*models.Credentials, error) {
	var c models.Credentials
	if err := s.credentialsCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) SaveCredentials(ctx context.Context, creds *models.Credentials) error {
	_, err := s.credentialsCol.ReplaceOne(ctx,
		bson.M{"user_id": creds.UserID},
		creds,
		options.Replace().SetUpsert(true),
	)
	return err
}

// DeleteUser removes dependents before the profile so a retry after a partial failure
// still finds the profile and finishes the job.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.subscriptionsCol.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return err
	}
	if _, err := s.credentialsCol.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return err
	}
	res, err := s.profilesCol.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

func wantsTLS(uri string) bool {
	u := strings.ToLower(uri)
	return strings.HasPrefix(u, "mongodb+srv://") ||
		strings.Contains(u, "tls=true") ||
		strings.Contains(u, "ssl=true")
}
