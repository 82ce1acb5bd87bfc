package cache

import (
	"context"
	"log/slog"
)

// SafeInvalidatePattern invalidates a cache pattern, logging instead of
// returning on failure. Stale entries expire by TTL anyway.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// InvalidateItemCaches drops the item list and topic count caches after the
// bank contents change.
func InvalidateItemCaches(ctx context.Context, cm *CacheManager) {
	SafeInvalidatePattern(ctx, cm.Item, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, "topic:*")
}
