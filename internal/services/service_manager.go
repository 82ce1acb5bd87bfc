package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/adaptive-ed/assessment-engine/internal/cache"
	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/llm"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
)

// ServiceManagerConfig wires external collaborators and operation deadlines.
type ServiceManagerConfig struct {
	LLMClient    llm.Client
	CacheManager *cache.CacheManager
	Publisher    events.EventPublisher

	// ProctorDefaults apply to proctored sessions that carry no override.
	ProctorDefaults models.ProctorConfig

	GradingTimeout    time.Duration
	GenerationTimeout time.Duration
	NotesTimeout      time.Duration
	DedupWindow       time.Duration
}

type serviceManager struct {
	repo      repositories.Repository
	logger    *slog.Logger
	publisher events.EventPublisher

	session    SessionService
	selection  SelectionService
	grading    GradingService
	mastery    MasteryService
	proctor    ProctorService
	generation GenerationService
	item       ItemService
}

// NewServiceManager builds the full service graph in dependency order.
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, v *validator.BusinessValidator, cfg ServiceManagerConfig) ServiceManager {
	if cfg.CacheManager == nil {
		cfg.CacheManager = cache.NewCacheManager(nil)
	}
	if cfg.ProctorDefaults == (models.ProctorConfig{}) {
		cfg.ProctorDefaults = models.DefaultProctorConfig()
	}

	grading := NewGradingService(logger, cfg.LLMClient, cfg.GradingTimeout)
	mastery := NewMasteryService(repo, logger)
	generation := NewGenerationService(repo, logger, cfg.LLMClient, cfg.CacheManager, cfg.Publisher, GenerationConfig{
		GenerationTimeout: cfg.GenerationTimeout,
		NotesTimeout:      cfg.NotesTimeout,
		DedupWindow:       cfg.DedupWindow,
	})
	selection := NewSelectionService(repo, logger, generation)
	session := NewSessionService(repo, logger, v, selection, grading, mastery, cfg.Publisher, cfg.ProctorDefaults)
	proctor := NewProctorService(repo, logger, cfg.Publisher)
	item := NewItemService(repo, logger, v)

	return &serviceManager{
		repo:       repo,
		logger:     logger,
		publisher:  cfg.Publisher,
		session:    session,
		selection:  selection,
		grading:    grading,
		mastery:    mastery,
		proctor:    proctor,
		generation: generation,
		item:       item,
	}
}

func (sm *serviceManager) Session() SessionService       { return sm.session }
func (sm *serviceManager) Selection() SelectionService   { return sm.selection }
func (sm *serviceManager) Grading() GradingService       { return sm.grading }
func (sm *serviceManager) Mastery() MasteryService       { return sm.mastery }
func (sm *serviceManager) Proctor() ProctorService       { return sm.proctor }
func (sm *serviceManager) Generation() GenerationService { return sm.generation }
func (sm *serviceManager) Item() ItemService             { return sm.item }

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	return sm.repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	if closer, ok := sm.generation.(*generationService); ok {
		closer.Close()
	}
	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Warn("Failed to close event publisher", "error", err)
		}
	}
	return sm.repo.Close()
}
