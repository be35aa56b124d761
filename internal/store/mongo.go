package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/DrctNews/DRCT-NEWS/internal/config"
	"github.com/DrctNews/DRCT-NEWS/internal/domain"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
)

// CollectionGroups holds one document per group keyed by unique chat_id.
const CollectionGroups = "groups"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// groupCollection is the slice of mongo.Collection the manager uses, faked in
// tests.
type groupCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager is the Mongo-backed registry store, for deployments that already run
// MongoDB and prefer it over the snapshot file. Save mirrors the registry
// wholesale: every record is upserted and documents for ids no longer present
// are pruned.
type Manager struct {
	client mongoClient
	db     *mongo.Database
	groups groupCollection
	logger *logrus.Entry
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDB)

	return &Manager{
		client: client,
		db:     db,
		groups: db.Collection(CollectionGroups),
		logger: logger,
	}, nil
}

// EnsureBaseIndexes creates the unique chat_id index on the groups collection.
// The collection is created implicitly if it does not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	groupIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}},
			Options: options.Index().
				SetName("chat_id_unique").
				SetUnique(true),
		},
	}

	if _, err := createIndexes(ctx, m.db.Collection(CollectionGroups), groupIndexes); err != nil {
		return fmt.Errorf("create groups indexes: %w", err)
	}

	return nil
}

// Load reads every group document.
func (m *Manager) Load(ctx context.Context) ([]domain.GroupRecord, error) {
	if m == nil || m.groups == nil {
		return nil, errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := m.groups.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}

	var records []domain.GroupRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}

	return records, nil
}

// Save upserts every record by chat_id and prunes documents for ids that no
// longer appear in the registry.
func (m *Manager) Save(ctx context.Context, records []domain.GroupRecord) error {
	if m == nil || m.groups == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ChatID)

		_, err := m.groups.UpdateOne(ctx,
			bson.M{"chat_id": rec.ChatID},
			bson.M{"$set": rec},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("upsert group %d: %w", rec.ChatID, err)
		}
	}

	if _, err := m.groups.DeleteMany(ctx, bson.M{"chat_id": bson.M{"$nin": ids}}); err != nil {
		return fmt.Errorf("prune removed groups: %w", err)
	}

	return nil
}

// Ping verifies connectivity against the primary, for the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
