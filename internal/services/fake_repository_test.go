package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

// fakeRepository is an in-memory Repository for service tests. All stores
// share one mutex; WithTransaction runs the callback against the same
// state, which is enough because these tests drive operations serially.
type fakeRepository struct {
	mu sync.Mutex

	items     map[uint]*models.Item
	sessions  map[uint]*models.AssessmentSession
	attempts  []*models.Attempt
	logs      []*models.ProctorLog
	overrides []*models.SessionOverride
	mastery   map[string]*models.TopicMastery
	batches   map[uint]*models.GeneratedBatch

	nextItemID    uint
	nextSessionID uint
	nextBatchID   uint
	nextRowID     uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		items:    make(map[uint]*models.Item),
		sessions: make(map[uint]*models.AssessmentSession),
		mastery:  make(map[string]*models.TopicMastery),
		batches:  make(map[uint]*models.GeneratedBatch),
	}
}

func (f *fakeRepository) Item() repositories.ItemRepository             { return &fakeItemRepo{f} }
func (f *fakeRepository) Session() repositories.SessionRepository       { return &fakeSessionRepo{f} }
func (f *fakeRepository) Attempt() repositories.AttemptRepository       { return &fakeAttemptRepo{f} }
func (f *fakeRepository) ProctorLog() repositories.ProctorLogRepository { return &fakeProctorLogRepo{f} }
func (f *fakeRepository) Override() repositories.OverrideRepository     { return &fakeOverrideRepo{f} }
func (f *fakeRepository) Mastery() repositories.MasteryRepository       { return &fakeMasteryRepo{f} }
func (f *fakeRepository) Batch() repositories.BatchRepository           { return &fakeBatchRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== ITEMS =====

type fakeItemRepo struct{ f *fakeRepository }

func (r *fakeItemRepo) Create(ctx context.Context, item *models.Item) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.nextItemID++
	item.ID = r.f.nextItemID
	r.f.items[item.ID] = item
	return nil
}

func (r *fakeItemRepo) CreateBatch(ctx context.Context, items []*models.Item) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, item := range items {
		r.f.nextItemID++
		item.ID = r.f.nextItemID
		r.f.items[item.ID] = item
	}
	return nil
}

func (r *fakeItemRepo) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	item, ok := r.f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return item, nil
}

func (r *fakeItemRepo) GetByIDs(ctx context.Context, ids []uint) ([]*models.Item, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Item
	for _, id := range ids {
		if item, ok := r.f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) Find(ctx context.Context, filters repositories.ItemFilters) ([]*models.Item, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()

	excluded := make(map[uint]bool, len(filters.ExcludeIDs))
	for _, id := range filters.ExcludeIDs {
		excluded[id] = true
	}

	ids := make([]uint, 0, len(r.f.items))
	for id := range r.f.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*models.Item
	for _, id := range ids {
		item := r.f.items[id]
		if excluded[id] {
			continue
		}
		if len(filters.Topics) > 0 && !hasAnyTopic(item, filters.Topics) {
			continue
		}
		if len(filters.Difficulties) > 0 && !containsBucket(filters.Difficulties, item.Difficulty) {
			continue
		}
		if filters.Type != nil && item.Type != *filters.Type {
			continue
		}
		if filters.Source != nil && item.Source != *filters.Source {
			continue
		}
		if filters.BatchID != nil && (item.BatchID == nil || *item.BatchID != *filters.BatchID) {
			continue
		}
		out = append(out, item)
		if filters.Limit > 0 && len(out) >= filters.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeItemRepo) CountByTopic(ctx context.Context, topic string) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var count int64
	for _, item := range r.f.items {
		if hasAnyTopic(item, []string{topic}) {
			count++
		}
	}
	return count, nil
}

func hasAnyTopic(item *models.Item, topics []string) bool {
	var itemTopics []string
	if len(item.Topics) > 0 {
		_ = json.Unmarshal(item.Topics, &itemTopics)
	}
	for _, want := range topics {
		for _, have := range itemTopics {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ===== SESSIONS =====

type fakeSessionRepo struct{ f *fakeRepository }

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.AssessmentSession) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.nextSessionID++
	session.ID = r.f.nextSessionID
	session.CreatedAt = time.Now()
	stored := *session
	r.f.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id uint) (*models.AssessmentSession, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	session, ok := r.f.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.AssessmentSession, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *models.AssessmentSession) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *session
	r.f.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) ApplyViolation(ctx context.Context, id uint, severity models.Severity, tabSwitch bool) (*models.AssessmentSession, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	session, ok := r.f.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}

	if severity == models.SeverityMajor {
		session.MajorViolations++
	} else {
		session.MinorViolations++
	}
	session.TotalViolations++
	if tabSwitch {
		session.TabSwitchCount++
	}
	session.RiskScore = session.MajorViolations*models.RiskWeightMajor + session.MinorViolations*models.RiskWeightMinor

	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.AssessmentSession, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()

	var out []*models.AssessmentSession
	for _, session := range r.f.sessions {
		if filters.UserID != nil && session.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		if filters.Mode != nil && session.Mode != *filters.Mode {
			continue
		}
		copied := *session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	total := int64(len(out))
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

// ===== ATTEMPTS =====

type fakeAttemptRepo struct{ f *fakeRepository }

func (r *fakeAttemptRepo) Create(ctx context.Context, attempt *models.Attempt) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.attempts {
		if existing.SessionID == attempt.SessionID && existing.ItemID == attempt.ItemID {
			return ErrDuplicateAttempt
		}
	}
	r.f.nextRowID++
	attempt.ID = r.f.nextRowID
	attempt.CreatedAt = time.Now()
	r.f.attempts = append(r.f.attempts, attempt)
	return nil
}

func (r *fakeAttemptRepo) GetBySession(ctx context.Context, sessionID uint) ([]*models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Attempt
	for _, attempt := range r.f.attempts {
		if attempt.SessionID == sessionID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemIndex < out[j].ItemIndex })
	return out, nil
}

func (r *fakeAttemptRepo) CountCorrect(ctx context.Context, sessionID uint) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var count int64
	for _, attempt := range r.f.attempts {
		if attempt.SessionID == sessionID && attempt.IsCorrect {
			count++
		}
	}
	return count, nil
}

// ===== PROCTOR LOGS / OVERRIDES =====

type fakeProctorLogRepo struct{ f *fakeRepository }

func (r *fakeProctorLogRepo) Create(ctx context.Context, log *models.ProctorLog) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.nextRowID++
	log.ID = r.f.nextRowID
	log.CreatedAt = time.Now()
	r.f.logs = append(r.f.logs, log)
	return nil
}

func (r *fakeProctorLogRepo) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctorLog, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.ProctorLog
	for _, log := range r.f.logs {
		if log.SessionID == sessionID {
			out = append(out, log)
		}
	}
	return out, nil
}

type fakeOverrideRepo struct{ f *fakeRepository }

func (r *fakeOverrideRepo) Create(ctx context.Context, override *models.SessionOverride) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.nextRowID++
	override.ID = r.f.nextRowID
	override.CreatedAt = time.Now()
	r.f.overrides = append(r.f.overrides, override)
	return nil
}

func (r *fakeOverrideRepo) GetBySession(ctx context.Context, sessionID uint) ([]*models.SessionOverride, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SessionOverride
	for _, override := range r.f.overrides {
		if override.SessionID == sessionID {
			out = append(out, override)
		}
	}
	return out, nil
}

// ===== MASTERY =====

type fakeMasteryRepo struct{ f *fakeRepository }

func masteryKey(userID, topic string) string { return userID + "|" + topic }

func (r *fakeMasteryRepo) Get(ctx context.Context, userID, topic string) (*models.TopicMastery, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	record, ok := r.f.mastery[masteryKey(userID, topic)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *fakeMasteryRepo) GetByUser(ctx context.Context, userID string) ([]*models.TopicMastery, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.TopicMastery
	for _, record := range r.f.mastery {
		if record.UserID == userID {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (r *fakeMasteryRepo) Upsert(ctx context.Context, record *models.TopicMastery) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if record.ID == 0 {
		r.f.nextRowID++
		record.ID = r.f.nextRowID
	}
	stored := *record
	r.f.mastery[masteryKey(record.UserID, record.Topic)] = &stored
	return nil
}

// ===== BATCHES =====

type fakeBatchRepo struct{ f *fakeRepository }

func (r *fakeBatchRepo) Create(ctx context.Context, batch *models.GeneratedBatch) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.nextBatchID++
	batch.ID = r.f.nextBatchID
	batch.CreatedAt = time.Now()
	stored := *batch
	r.f.batches[batch.ID] = &stored
	return nil
}

func (r *fakeBatchRepo) Update(ctx context.Context, batch *models.GeneratedBatch) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.batches[batch.ID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *batch
	r.f.batches[batch.ID] = &stored
	return nil
}

func (r *fakeBatchRepo) GetRecent(ctx context.Context, filters repositories.BatchFilters) ([]*models.GeneratedBatch, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()

	var out []*models.GeneratedBatch
	for _, batch := range r.f.batches {
		if filters.Topic != "" && batch.Topic != filters.Topic {
			continue
		}
		if len(filters.Statuses) > 0 && !containsStatus(filters.Statuses, batch.Status) {
			continue
		}
		if filters.Since != nil && batch.CreatedAt.Before(*filters.Since) {
			continue
		}
		copied := *batch
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *fakeBatchRepo) MarkPublished(ctx context.Context, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	batch, ok := r.f.batches[id]
	if !ok || batch.Status != models.BatchDraft {
		return repositories.ErrNotFound
	}
	now := time.Now()
	batch.Status = models.BatchPublished
	batch.PublishedAt = &now
	return nil
}

func containsStatus(statuses []models.BatchStatus, status models.BatchStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
