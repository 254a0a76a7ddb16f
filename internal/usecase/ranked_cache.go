package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RankedCache stores serialized ranked lists. A nil cache disables caching.
type RankedCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const (
	defaultRankedLimit = 20
	maxRankedLimit     = 100
)

// RankedCacheKey holds the user's full top list; callers slice it to their limit.
func RankedCacheKey(userID uuid.UUID) string {
	return "matches:ranked:" + userID.String()
}

func normalizeRankedLimit(limit int) int {
	if limit <= 0 {
		return defaultRankedLimit
	}
	if limit > maxRankedLimit {
		return maxRankedLimit
	}
	return limit
}
