package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrQuotaExceeded is returned when a caller's daily token budget is spent.
var ErrQuotaExceeded = errors.New("daily token quota exceeded")

const defaultDailyTokenLimit = 50000

// UserQuota tracks per-caller daily token consumption, persisted so it
// survives restarts.
type UserQuota struct {
	UserID          string    `bson:"_id"`
	DailyTokenLimit int       `bson:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today"`
	RequestsToday   int       `bson:"requests_today"`
	LastResetDate   time.Time `bson:"last_reset_date"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// QuotaStore enforces per-user daily token budgets on top of a mongo
// collection. A nil store disables enforcement.
type QuotaStore struct {
	col *mongo.Collection
}

func NewQuotaStore(db *mongo.Database) *QuotaStore {
	return &QuotaStore{col: db.Collection("user_quotas")}
}

// Check verifies the user can spend estimatedTokens today, creating the
// quota record on first use and rolling the window at midnight UTC.
func (q *QuotaStore) Check(ctx context.Context, userID string, estimatedTokens int) error {
	if q == nil {
		return nil
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	_, err := q.col.UpdateOne(ctx,
		bson.M{"_id": userID, "last_reset_date": bson.M{"$lt": today}},
		bson.M{"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return err
	}

	var quota UserQuota
	err = q.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&quota)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return err
		}
		quota = UserQuota{
			UserID:          userID,
			DailyTokenLimit: defaultDailyTokenLimit,
			LastResetDate:   today,
			UpdatedAt:       now,
		}
		if _, err := q.col.InsertOne(ctx, quota); err != nil {
			return err
		}
	}

	if quota.TokensUsedToday+estimatedTokens > quota.DailyTokenLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// Record adds actual consumption after a completed request.
func (q *QuotaStore) Record(ctx context.Context, userID string, tokens int) error {
	if q == nil {
		return nil
	}
	_, err := q.col.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"tokens_used_today": tokens, "requests_today": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// Status returns the caller's current quota record.
func (q *QuotaStore) Status(ctx context.Context, userID string) (*UserQuota, error) {
	var quota UserQuota
	if err := q.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// SetLimit overrides a user's daily token limit.
func (q *QuotaStore) SetLimit(ctx context.Context, userID string, dailyLimit int) error {
	_, err := q.col.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"daily_token_limit": dailyLimit, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}
