package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/adaptive-ed/assessment-engine/internal/cache"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

type ItemPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

// ===== BASIC CRUD OPERATIONS =====

// Create creates a new item and invalidates list caches
func (r *ItemPostgreSQL) Create(ctx context.Context, item *models.Item) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	cache.InvalidateItemCaches(ctx, r.cacheManager)

	return nil
}

// CreateBatch inserts items in a single statement
func (r *ItemPostgreSQL) CreateBatch(ctx context.Context, items []*models.Item) error {
	if len(items) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(items).Error; err != nil {
		return fmt.Errorf("failed to create items: %w", err)
	}

	cache.InvalidateItemCaches(ctx, r.cacheManager)

	return nil
}

// GetByID retrieves an item by ID with caching
func (r *ItemPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var item models.Item

	err := r.cacheManager.Item.CacheOrExecute(ctx, cacheKey, &item, cache.ItemCacheConfig.TTL, func() (interface{}, error) {
		var dbItem models.Item
		if err := r.db.WithContext(ctx).First(&dbItem, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get item: %w", err)
		}
		return &dbItem, nil
	})

	if err != nil {
		return nil, err
	}

	return &item, nil
}

// GetByIDs retrieves items preserving the order of the requested ids
func (r *ItemPostgreSQL) GetByIDs(ctx context.Context, ids []uint) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}

	var rows []*models.Item
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	byID := make(map[uint]*models.Item, len(rows))
	for _, item := range rows {
		byID[item.ID] = item
	}

	ordered := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}

	return ordered, nil
}

// ===== QUERIES =====

// Find runs a filtered item query. Topic matching is any-of over the
// item's topic set.
func (r *ItemPostgreSQL) Find(ctx context.Context, filters repositories.ItemFilters) ([]*models.Item, error) {
	query := r.db.WithContext(ctx).Model(&models.Item{})

	if len(filters.Topics) > 0 {
		query = query.Where(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(items.topics) AS t(topic) WHERE t.topic IN ?)",
			filters.Topics,
		)
	}

	if len(filters.Difficulties) > 0 {
		query = query.Where("difficulty IN ?", filters.Difficulties)
	}

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}

	if filters.Source != nil {
		query = query.Where("source = ?", *filters.Source)
	}

	if filters.BatchID != nil {
		query = query.Where("batch_id = ?", *filters.BatchID)
	}

	if len(filters.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filters.ExcludeIDs)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var items []*models.Item
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	return items, nil
}

// CountByTopic counts items carrying the given topic, cached
func (r *ItemPostgreSQL) CountByTopic(ctx context.Context, topic string) (int64, error) {
	cacheKey := fmt.Sprintf("topic:%s:count", topic)
	var count int64

	err := r.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &count, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var dbCount int64
		if err := r.db.WithContext(ctx).Model(&models.Item{}).
			Where("topics @> ?", fmt.Sprintf(`[%q]`, topic)).
			Count(&dbCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count items by topic: %w", err)
		}
		return dbCount, nil
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}
