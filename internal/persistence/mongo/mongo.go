// Package mongo implements the durable tier of the persistence fallback
// chain against a MongoDB database: one collection per domain, documents
// upserted by id via ReplaceOne.
package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/judgehost/judgehost/internal/persistence"
)

// Store is a MongoDB-backed implementation of persistence.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Dial connects to uri and pings the deployment so connection failures are
// discovered at construction time rather than on first use.
func Dial(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

type record struct {
	ID  string             `bson:"_id"`
	Doc persistence.Document `bson:"doc"`
}

func (s *Store) collection(domain persistence.Domain) *mongo.Collection {
	return s.db.Collection(string(domain))
}

func (s *Store) Put(ctx context.Context, domain persistence.Domain, id string, doc persistence.Document) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection(domain).ReplaceOne(ctx, bson.M{"_id": id}, record{ID: id, Doc: doc}, opts)
	return err
}

func (s *Store) Get(ctx context.Context, domain persistence.Domain, id string) (persistence.Document, error) {
	var rec record
	err := s.collection(domain).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Doc, nil
}

func (s *Store) Delete(ctx context.Context, domain persistence.Domain, id string) error {
	_, err := s.collection(domain).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) List(ctx context.Context, domain persistence.Domain) ([]persistence.Document, error) {
	return s.Search(ctx, domain, nil)
}

func (s *Store) Search(ctx context.Context, domain persistence.Domain, predicate func(persistence.Document) bool) ([]persistence.Document, error) {
	cur, err := s.collection(domain).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []persistence.Document
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		if predicate == nil || predicate(rec.Doc) {
			out = append(out, rec.Doc)
		}
	}
	return out, cur.Err()
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the durable connection is still reachable, used by
// the persistence manager's health aggregation.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
