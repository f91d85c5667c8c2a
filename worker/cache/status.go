package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 10 * time.Minute
)

type statusEntry struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// StatusCache mirrors run transitions into redis so the registry's status
// lookups are served from the cache while a run is in flight. Key format is
// shared with the registry's status cache.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (sc *StatusCache) Set(ctx context.Context, jobID, status string, progress int) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, jobID)

	data, err := json.Marshal(statusEntry{Status: status, Progress: progress})
	if err != nil {
		return err
	}
	return sc.client.Set(ctx, key, data, statusTTL).Err()
}
