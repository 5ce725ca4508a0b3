package snapshot

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionInterface defines the collection methods used by MongoSink.
type CollectionInterface interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// MongoSink upserts the latest snapshot of an account into a collection.
type MongoSink struct {
	collection CollectionInterface
	account    string
}

// NewMongoSink creates a sink writing one document per account.
func NewMongoSink(collection CollectionInterface, account string) *MongoSink {
	return &MongoSink{collection: collection, account: account}
}

// ConnectMongo connects to uri and returns the collection together with a disconnect function.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Collection, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return client.Database(database).Collection(collection), client.Disconnect, nil
}

// Save implements Sink.
func (m *MongoSink) Save(ctx context.Context, s Snapshot) error {
	commits, estimated := s.Commits()
	filter := bson.M{"account": m.account}
	update := bson.M{
		"$set": bson.M{
			"account":           m.account,
			"total_repos":       s.TotalRepos,
			"total_commits":     commits,
			"commits_estimated": estimated,
			"total_lines":       s.TotalLines,
			"formatted_lines":   s.FormattedLines,
			"lines_margin":      s.LinesMargin,
			"top_languages":     s.TopLanguages,
			"total_stars":       s.TotalStars,
			"public_repos":      s.PublicRepos,
			"private_repos":     s.PrivateRepos,
			"commit_strategy":   s.CommitStrategy,
			"generated_at":      s.GeneratedAt,
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}
