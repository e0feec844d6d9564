package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
)

const (
	syncKeyPrefix = "hub:sync:"
	assessmentKey = "hub:assessment"
	poamKey       = "hub:poam"
)

// RedisStore keeps durable state in Redis, for deployments where the hub runs
// alongside other services sharing the assessment record.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the client's
// lifecycle and should have pinged it already.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SyncRecord returns the provider's last sync record, or (nil, nil).
func (rs *RedisStore) SyncRecord(ctx context.Context, providerID string) (*evidence.SyncRecord, error) {
	data, err := rs.client.Get(ctx, syncKeyPrefix+providerID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync record: %w", err)
	}
	var rec evidence.SyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode sync record: %w", err)
	}
	return &rec, nil
}

// PutSyncRecord replaces the provider's record wholesale.
func (rs *RedisStore) PutSyncRecord(ctx context.Context, rec *evidence.SyncRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode sync record: %w", err)
	}
	if err := rs.client.Set(ctx, syncKeyPrefix+rec.ProviderID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write sync record: %w", err)
	}
	return nil
}

// Assessment reads the assessment hash.
func (rs *RedisStore) Assessment(ctx context.Context) (map[string]ControlAssessment, error) {
	raw, err := rs.client.HGetAll(ctx, assessmentKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment record: %w", err)
	}
	out := make(map[string]ControlAssessment, len(raw))
	for controlID, data := range raw {
		var entry ControlAssessment
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode assessment entry %s: %w", controlID, err)
		}
		out[controlID] = entry
	}
	return out, nil
}

// MergeAssessment merges per-control updates into the assessment hash.
func (rs *RedisStore) MergeAssessment(ctx context.Context, updates map[string]ControlAssessment) error {
	for controlID, update := range updates {
		var existing ControlAssessment
		data, err := rs.client.HGet(ctx, assessmentKey, controlID).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("failed to read assessment entry %s: %w", controlID, err)
		}
		if err == nil {
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to decode assessment entry %s: %w", controlID, err)
			}
		}
		merged, err := json.Marshal(mergeControl(existing, update))
		if err != nil {
			return fmt.Errorf("failed to encode assessment entry %s: %w", controlID, err)
		}
		if err := rs.client.HSet(ctx, assessmentKey, controlID, merged).Err(); err != nil {
			return fmt.Errorf("failed to write assessment entry %s: %w", controlID, err)
		}
	}
	return nil
}

// POAM reads the POA&M hash.
func (rs *RedisStore) POAM(ctx context.Context) (map[string]POAMItem, error) {
	raw, err := rs.client.HGetAll(ctx, poamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read POA&M record: %w", err)
	}
	out := make(map[string]POAMItem, len(raw))
	for controlID, data := range raw {
		var item POAMItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("failed to decode POA&M entry %s: %w", controlID, err)
		}
		out[controlID] = item
	}
	return out, nil
}

// PutPOAMItem writes one POA&M entry.
func (rs *RedisStore) PutPOAMItem(ctx context.Context, controlID string, item POAMItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode POA&M entry: %w", err)
	}
	if err := rs.client.HSet(ctx, poamKey, controlID, data).Err(); err != nil {
		return fmt.Errorf("failed to write POA&M entry: %w", err)
	}
	return nil
}
