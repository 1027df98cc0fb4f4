// Package storage persists the pipeline state that lives outside the vector
// index: metadata overrides, sync statuses, raw-text snapshots, and history
// events.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/utils"
)

const (
	overridesCollection  = "metadata_overrides"
	syncStatusCollection = "sync_status"
	snapshotsCollection  = "document_snapshots"
	historyCollection    = "history_events"
)

// snapshot wraps a compressed raw-text capture of a document at index time.
type snapshot struct {
	DocumentID  string    `bson:"_id"`
	Compressed  []byte    `bson:"compressed"`
	Algorithm   string    `bson:"algorithm"`
	RawSize     int       `bson:"raw_size"`
	StoredSize  int       `bson:"stored_size"`
	CapturedAt  time.Time `bson:"captured_at"`
}

// MongoStore implements the pipeline's metadata store on mongo collections.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates the store and its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{db: db}

	historyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection(historyCollection).Indexes().CreateMany(ctx, historyIndexes); err != nil {
		return nil, fmt.Errorf("create history indexes: %w", err)
	}

	statusIndex := mongo.IndexModel{Keys: bson.D{{Key: "last_sync", Value: -1}}}
	if _, err := db.Collection(syncStatusCollection).Indexes().CreateOne(ctx, statusIndex); err != nil {
		return nil, fmt.Errorf("create sync status index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) GetOverride(ctx context.Context, documentID string) (*models.MetadataOverride, error) {
	var override models.MetadataOverride
	err := s.db.Collection(overridesCollection).
		FindOne(ctx, bson.M{"_id": documentID}).Decode(&override)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get override %s: %w", documentID, err)
	}
	return &override, nil
}

func (s *MongoStore) SetOverride(ctx context.Context, override models.MetadataOverride) error {
	_, err := s.db.Collection(overridesCollection).ReplaceOne(ctx,
		bson.M{"_id": override.DocumentID},
		override,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set override %s: %w", override.DocumentID, err)
	}
	return nil
}

func (s *MongoStore) RemoveOverride(ctx context.Context, documentID string) error {
	_, err := s.db.Collection(overridesCollection).DeleteOne(ctx, bson.M{"_id": documentID})
	if err != nil {
		return fmt.Errorf("remove override %s: %w", documentID, err)
	}
	return nil
}

func (s *MongoStore) SaveSyncStatus(ctx context.Context, status models.SyncStatus) error {
	_, err := s.db.Collection(syncStatusCollection).ReplaceOne(ctx,
		bson.M{"_id": status.DocumentID},
		status,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save sync status %s: %w", status.DocumentID, err)
	}
	return nil
}

func (s *MongoStore) GetSyncStatus(ctx context.Context, documentID string) (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := s.db.Collection(syncStatusCollection).
		FindOne(ctx, bson.M{"_id": documentID}).Decode(&status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sync status %s: %w", documentID, err)
	}
	return &status, nil
}

func (s *MongoStore) ListSyncStatuses(ctx context.Context) ([]models.SyncStatus, error) {
	cursor, err := s.db.Collection(syncStatusCollection).
		Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "last_sync", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sync statuses: %w", err)
	}
	defer cursor.Close(ctx)

	var statuses []models.SyncStatus
	if err := cursor.All(ctx, &statuses); err != nil {
		return nil, fmt.Errorf("decode sync statuses: %w", err)
	}
	return statuses, nil
}

func (s *MongoStore) RemoveSyncStatus(ctx context.Context, documentID string) error {
	_, err := s.db.Collection(syncStatusCollection).DeleteOne(ctx, bson.M{"_id": documentID})
	if err != nil {
		return fmt.Errorf("remove sync status %s: %w", documentID, err)
	}
	return nil
}

// SaveSnapshot stores a gzip-compressed raw-text capture of the document.
func (s *MongoStore) SaveSnapshot(ctx context.Context, documentID string, text []byte) error {
	compressed, err := utils.CompressData(text, utils.CompressionGzip)
	if err != nil {
		return fmt.Errorf("compress snapshot %s: %w", documentID, err)
	}
	snap := snapshot{
		DocumentID: documentID,
		Compressed: compressed,
		Algorithm:  string(utils.CompressionGzip),
		RawSize:    len(text),
		StoredSize: len(compressed),
		CapturedAt: time.Now().UTC(),
	}
	logger.Debug("snapshot compressed", "document_id", documentID,
		"ratio", utils.CompressionRatio(text, compressed))
	_, err = s.db.Collection(snapshotsCollection).ReplaceOne(ctx,
		bson.M{"_id": documentID},
		snap,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", documentID, err)
	}
	return nil
}

func (s *MongoStore) GetSnapshot(ctx context.Context, documentID string) ([]byte, error) {
	var snap snapshot
	err := s.db.Collection(snapshotsCollection).
		FindOne(ctx, bson.M{"_id": documentID}).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot %s: %w", documentID, err)
	}
	return utils.DecompressData(snap.Compressed, utils.CompressionAlgorithm(snap.Algorithm))
}

func (s *MongoStore) AddHistoryEvent(ctx context.Context, event models.HistoryEvent) error {
	_, err := s.db.Collection(historyCollection).InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("add history event: %w", err)
	}
	return nil
}

// ListHistoryEvents returns the most recent events, newest first. A zero
// documentID lists across all documents.
func (s *MongoStore) ListHistoryEvents(ctx context.Context, documentID string, limit int64) ([]models.HistoryEvent, error) {
	filter := bson.M{}
	if documentID != "" {
		filter["document_id"] = documentID
	}
	if limit <= 0 {
		limit = 50
	}
	cursor, err := s.db.Collection(historyCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list history events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.HistoryEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode history events: %w", err)
	}
	return events, nil
}

func (s *MongoStore) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.Client().Ping(ctx, readpref.Primary())
}
