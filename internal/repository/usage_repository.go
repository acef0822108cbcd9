package repository

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sentencevault/sentence-service/shared/models"
)

const (
	usageStatsKey           = "usage:stats"
	processedEventKeyPrefix = "processed:event:"

	// processedEventTTL covers any realistic redelivery window of a consumer group.
	processedEventTTL = 72 * time.Hour

	fieldRegistrations      = "registrations"
	fieldSentencesStored    = "sentences_stored"
	fieldSentencesRetrieved = "sentences_retrieved"
	fieldTokensSpent        = "tokens_spent"
)

// UsageRepository keeps the aggregate usage projection in a Redis hash.
type UsageRepository struct {
	redis *goredis.Client
}

func NewUsageRepository(redisClient *goredis.Client) *UsageRepository {
	return &UsageRepository{redis: redisClient}
}

// MarkEventProcessed claims eventID. It returns false when the event was
// already claimed, which means the delivery is a duplicate.
func (r *UsageRepository) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	claimed, err := r.redis.SetNX(ctx, processedEventKeyPrefix+eventID, "1", processedEventTTL).Result()
	if err != nil {
		return false, storageError("mark event processed", err)
	}
	return claimed, nil
}

// UnmarkEventProcessed releases a claim so a redelivery can apply the event.
func (r *UsageRepository) UnmarkEventProcessed(ctx context.Context, eventID string) {
	if err := r.redis.Del(ctx, processedEventKeyPrefix+eventID).Err(); err != nil {
		log.Printf("Failed to release event %s: %v", eventID, err)
	}
}

// Record adds delta to the projection atomically.
func (r *UsageRepository) Record(ctx context.Context, delta models.UsageView) error {
	increments := map[string]int64{
		fieldRegistrations:      delta.Registrations,
		fieldSentencesStored:    delta.SentencesStored,
		fieldSentencesRetrieved: delta.SentencesRetrieved,
		fieldTokensSpent:        delta.TokensSpent,
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for field, n := range increments {
			if n != 0 {
				pipe.HIncrBy(ctx, usageStatsKey, field, n)
			}
		}
		return nil
	})
	if err != nil {
		return storageError("record usage", err)
	}
	return nil
}

func (r *UsageRepository) GetUsage(ctx context.Context) (*models.UsageView, error) {
	values, err := r.redis.HGetAll(ctx, usageStatsKey).Result()
	if err != nil {
		return nil, storageError("get usage", err)
	}
	return parseUsage(values)
}

func parseUsage(values map[string]string) (*models.UsageView, error) {
	view := &models.UsageView{}
	targets := map[string]*int64{
		fieldRegistrations:      &view.Registrations,
		fieldSentencesStored:    &view.SentencesStored,
		fieldSentencesRetrieved: &view.SentencesRetrieved,
		fieldTokensSpent:        &view.TokensSpent,
	}
	for field, target := range targets {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid usage counter %s: %w", field, err)
		}
		*target = n
	}
	return view, nil
}
