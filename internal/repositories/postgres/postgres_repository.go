package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/adaptive-ed/assessment-engine/internal/cache"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

type repository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	item       repositories.ItemRepository
	session    repositories.SessionRepository
	attempt    repositories.AttemptRepository
	proctorLog repositories.ProctorLogRepository
	override   repositories.OverrideRepository
	mastery    repositories.MasteryRepository
	batch      repositories.BatchRepository
}

func newRepository(db *gorm.DB, redisClient *redis.Client) *repository {
	cm := cache.NewCacheManager(redisClient)
	return &repository{
		db:           db,
		redisClient:  redisClient,
		cacheManager: cm,
		item:         &ItemPostgreSQL{db: db, cacheManager: cm},
		session:      &SessionPostgreSQL{db: db},
		attempt:      &AttemptPostgreSQL{db: db},
		proctorLog:   &ProctorLogPostgreSQL{db: db},
		override:     &OverridePostgreSQL{db: db},
		mastery:      &MasteryPostgreSQL{db: db},
		batch:        &BatchPostgreSQL{db: db},
	}
}

// NewRepositoryManager builds the root repository and runs schema migration.
func NewRepositoryManager(config RepositoryConfig) (repositories.Repository, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := config.DB.AutoMigrate(
		&models.Item{},
		&models.AssessmentSession{},
		&models.Attempt{},
		&models.ProctorLog{},
		&models.SessionOverride{},
		&models.TopicMastery{},
		&models.GeneratedBatch{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return newRepository(config.DB, config.RedisClient), nil
}

func (r *repository) Item() repositories.ItemRepository             { return r.item }
func (r *repository) Session() repositories.SessionRepository       { return r.session }
func (r *repository) Attempt() repositories.AttemptRepository       { return r.attempt }
func (r *repository) ProctorLog() repositories.ProctorLogRepository { return r.proctorLog }
func (r *repository) Override() repositories.OverrideRepository     { return r.override }
func (r *repository) Mastery() repositories.MasteryRepository       { return r.mastery }
func (r *repository) Batch() repositories.BatchRepository           { return r.batch }

func (r *repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepository(tx, r.redisClient))
	})
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
