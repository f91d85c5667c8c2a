package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"transcriber/api/database"
	"transcriber/api/models"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 10 * time.Minute
)

// StatusEntry is the cached fast-path view of a job's state.
type StatusEntry struct {
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
}

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) Get(ctx context.Context, jobID string) (*StatusEntry, error) {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, jobID)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var entry StatusEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (sc *StatusCache) Set(ctx context.Context, jobID string, status models.JobStatus, progress int) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, jobID)

	data, err := json.Marshal(StatusEntry{Status: status, Progress: progress})
	if err != nil {
		return err
	}
	return sc.cache.Set(ctx, key, data, statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, jobID)
	return sc.cache.Del(ctx, key)
}
