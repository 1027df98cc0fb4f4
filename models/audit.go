package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/telemetry"
)

// Audit actions recorded by the retrieval orchestrator and the pipeline.
const (
	AuditActionQuery        = "QUERY"
	AuditActionQueryBlocked = "QUERY_BLOCKED"
	AuditActionQueryFailed  = "QUERY_FAILED"
	AuditActionIndex        = "INDEX"
	AuditActionDelete       = "DELETE"
	AuditActionPrune        = "PRUNE"
)

// AuditRecord is an immutable audit log entry. Entries are hash-chained per
// user so tampering with a stored record breaks the chain.
type AuditRecord struct {
	ID           string                 `bson:"_id,omitempty" json:"id"`
	Timestamp    time.Time              `bson:"timestamp" json:"timestamp"`
	UserID       string                 `bson:"user_id" json:"user_id"`
	Action       string                 `bson:"action" json:"action"`
	Query        string                 `bson:"query,omitempty" json:"query,omitempty"`
	Granted      bool                   `bson:"granted" json:"granted"`
	RequestID    string                 `bson:"request_id,omitempty" json:"request_id,omitempty"`
	ErrorMessage string                 `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	PreviousHash string                 `bson:"previous_hash" json:"previous_hash"`
	CurrentHash  string                 `bson:"current_hash" json:"current_hash"`
}

// ComputeHash hashes the immutable portion of the record together with the
// previous entry's hash.
func (r *AuditRecord) ComputeHash() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%t|%s",
		r.Timestamp.Format(time.RFC3339Nano),
		r.UserID,
		r.Action,
		r.Query,
		r.Granted,
		r.PreviousHash,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// AuditLogger persists hash-chained audit records to a mongo collection.
// It satisfies the orchestrator's audit sink interface; callers treat Log as
// fire-and-forget and never fail a response on an audit error.
type AuditLogger struct {
	col        *mongo.Collection
	metrics    *telemetry.Metrics
	lastHashMu sync.Mutex
	lastHashes map[string]string // userID -> last hash
}

// SetMetrics attaches the metric recorders. Optional; recording is a
// no-op until set.
func (al *AuditLogger) SetMetrics(m *telemetry.Metrics) {
	al.metrics = m
}

// NewAuditLogger creates an audit logger on the audit_logs collection.
func NewAuditLogger(db *mongo.Database) *AuditLogger {
	col := db.Collection("audit_logs")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
	}
	col.Indexes().CreateMany(context.Background(), indexes)

	return &AuditLogger{
		col:        col,
		lastHashes: make(map[string]string),
	}
}

// Log appends one record to the chain. Insert-only, never updated.
func (al *AuditLogger) Log(ctx context.Context, record AuditRecord) error {
	al.lastHashMu.Lock()
	defer al.lastHashMu.Unlock()

	record.PreviousHash = al.lastHashes[record.UserID]
	record.Timestamp = time.Now().UTC()
	record.ID = fmt.Sprintf("%d_%s", record.Timestamp.UnixNano(), record.UserID)
	record.CurrentHash = record.ComputeHash()

	if _, err := al.col.InsertOne(ctx, record); err != nil {
		logger.Error("audit insert failed", "user_id", record.UserID, "action", record.Action, "error", err)
		return err
	}

	al.lastHashes[record.UserID] = record.CurrentHash
	if al.metrics != nil {
		al.metrics.RecordAuditEvent(record.Action)
	}
	return nil
}

// VerifyChain walks a user's records in timestamp order and checks the
// hash chain end to end.
func (al *AuditLogger) VerifyChain(ctx context.Context, userID string) (bool, error) {
	cursor, err := al.col.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return false, err
	}
	defer cursor.Close(ctx)

	var previousHash string
	count := 0
	for cursor.Next(ctx) {
		var record AuditRecord
		if err := cursor.Decode(&record); err != nil {
			return false, err
		}
		count++

		if count > 1 && record.PreviousHash != previousHash {
			logger.Warn("audit chain broken", "record_id", record.ID)
			return false, nil
		}
		if record.CurrentHash != record.ComputeHash() {
			logger.Warn("audit record hash mismatch", "record_id", record.ID)
			return false, nil
		}
		previousHash = record.CurrentHash
	}

	return true, cursor.Err()
}

// QueryRecords returns a page of audit records matching the filter,
// newest first.
func (al *AuditLogger) QueryRecords(ctx context.Context, filter bson.M, page, pageSize int) ([]AuditRecord, int64, error) {
	total, err := al.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	skip := (page - 1) * pageSize
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(pageSize))

	cursor, err := al.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var records []AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
