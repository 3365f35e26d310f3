package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
)

// MockPreviewLinkRepository implements repository.PreviewLinkRepository for testing
type MockPreviewLinkRepository struct {
	mu     sync.RWMutex
	links  map[int64]*models.PreviewLink
	nextID int64
}

func NewMockPreviewLinkRepository() *MockPreviewLinkRepository {
	return &MockPreviewLinkRepository{
		links:  make(map[int64]*models.PreviewLink),
		nextID: 1,
	}
}

func (m *MockPreviewLinkRepository) Insert(ctx context.Context, link *models.PreviewLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.links {
		if existing.TokenHash == link.TokenHash {
			return repository.ErrTokenHashUsed
		}
	}

	link.ID = m.nextID
	m.nextID++
	stored := *link
	m.links[link.ID] = &stored
	return nil
}

func (m *MockPreviewLinkRepository) Find(ctx context.Context, id int64) (*models.PreviewLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockPreviewLinkRepository) FindByTokenHash(ctx context.Context, hash string) (*models.PreviewLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.links {
		if link.TokenHash == hash {
			copied := *link
			return &copied, nil
		}
	}
	return nil, repository.ErrLinkNotFound
}

func (m *MockPreviewLinkRepository) FindActiveByContent(ctx context.Context, contentID int64) (*models.PreviewLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *models.PreviewLink
	now := time.Now()
	for _, link := range m.links {
		if link.ContentID != contentID || link.Status != models.LinkStatusActive || link.Expired(now) {
			continue
		}
		if newest == nil || link.CreatedAt.After(newest.CreatedAt) || (link.CreatedAt.Equal(newest.CreatedAt) && link.ID > newest.ID) {
			newest = link
		}
	}

	if newest == nil {
		return nil, repository.ErrLinkNotFound
	}
	copied := *newest
	return &copied, nil
}

func (m *MockPreviewLinkRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists {
		return repository.ErrLinkNotFound
	}
	link.Status = status
	return nil
}

func (m *MockPreviewLinkRepository) UpdateExpiration(ctx context.Context, id int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists {
		return repository.ErrLinkNotFound
	}
	link.ExpiresAt = expiresAt
	return nil
}

func (m *MockPreviewLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[int64]*models.PreviewLink)
	m.nextID = 1
}

// MockPreviewHitRepository implements repository.PreviewHitRepository for testing
type MockPreviewHitRepository struct {
	mu     sync.RWMutex
	hits   map[int64][]*models.PreviewHit // link_id -> hits
	nextID int64
	Fail   bool // имитация отказа хранилища
}

func NewMockPreviewHitRepository() *MockPreviewHitRepository {
	return &MockPreviewHitRepository{
		hits:   make(map[int64][]*models.PreviewHit),
		nextID: 1,
	}
}

func (m *MockPreviewHitRepository) Insert(ctx context.Context, hit *models.PreviewHit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return context.DeadlineExceeded
	}

	hit.ID = m.nextID
	m.nextID++
	stored := *hit
	m.hits[hit.LinkID] = append(m.hits[hit.LinkID], &stored)
	return nil
}

func (m *MockPreviewHitRepository) RecentByLink(ctx context.Context, linkID int64, limit int) ([]models.PreviewHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]models.PreviewHit, 0, len(m.hits[linkID]))
	for _, hit := range m.hits[linkID] {
		hits = append(hits, *hit)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].ViewedAt.Equal(hits[j].ViewedAt) {
			return hits[i].ID > hits[j].ID
		}
		return hits[i].ViewedAt.After(hits[j].ViewedAt)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MockPreviewHitRepository) CountByLink(linkID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hits[linkID])
}

func (m *MockPreviewHitRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = make(map[int64][]*models.PreviewHit)
	m.nextID = 1
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.PreviewLink
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.PreviewLink),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, tokenHash string) (*models.PreviewLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[tokenHash]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, tokenHash string, link *models.PreviewLink, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *link
	m.cache[tokenHash] = &stored
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, tokenHash)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*models.PreviewLink)
}

// MockPostRepository implements repository.PostRepository for testing
type MockPostRepository struct {
	mu     sync.RWMutex
	posts  map[int64]*models.Post
	nextID int64
}

func NewMockPostRepository() *MockPostRepository {
	return &MockPostRepository{
		posts:  make(map[int64]*models.Post),
		nextID: 1,
	}
}

func (m *MockPostRepository) Find(ctx context.Context, id int64) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, exists := m.posts[id]
	if !exists {
		return nil, repository.ErrPostNotFound
	}
	copied := *post
	return &copied, nil
}

func (m *MockPostRepository) Insert(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post.ID = m.nextID
	m.nextID++
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	stored := *post
	m.posts[post.ID] = &stored
	return nil
}

// MockLevelRepository implements repository.LevelRepository for testing
type MockLevelRepository struct {
	mu     sync.RWMutex
	levels map[int64]*models.MembershipLevel
	nextID int64
}

func NewMockLevelRepository() *MockLevelRepository {
	return &MockLevelRepository{
		levels: make(map[int64]*models.MembershipLevel),
		nextID: 1,
	}
}

func (m *MockLevelRepository) Find(ctx context.Context, id int64) (*models.MembershipLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	level, exists := m.levels[id]
	if !exists {
		return nil, repository.ErrLevelNotFound
	}
	copied := *level
	return &copied, nil
}

func (m *MockLevelRepository) Insert(ctx context.Context, level *models.MembershipLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	level.ID = m.nextID
	m.nextID++
	stored := *level
	m.levels[level.ID] = &stored
	return nil
}

type usageKey struct {
	codeID  int64
	orderID int64
}

// MockDiscountCodeRepository implements repository.DiscountCodeRepository for testing
type MockDiscountCodeRepository struct {
	mu     sync.Mutex
	codes  map[int64]*models.DiscountCode
	uses   map[usageKey]int64 // (code, order) -> user
	nextID int64
}

func NewMockDiscountCodeRepository() *MockDiscountCodeRepository {
	return &MockDiscountCodeRepository{
		codes:  make(map[int64]*models.DiscountCode),
		uses:   make(map[usageKey]int64),
		nextID: 1,
	}
}

func (m *MockDiscountCodeRepository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Точное совпадение, с учётом регистра
	for _, existing := range m.codes {
		if existing.Code == code {
			copied := *existing
			return &copied, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}

func (m *MockDiscountCodeRepository) Find(ctx context.Context, id int64) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, exists := m.codes[id]
	if !exists {
		return nil, repository.ErrCodeNotFound
	}
	copied := *code
	return &copied, nil
}

func (m *MockDiscountCodeRepository) Insert(ctx context.Context, code *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code.ID = m.nextID
	m.nextID++
	stored := *code
	m.codes[code.ID] = &stored
	return nil
}

func (m *MockDiscountCodeRepository) CountUsageForUser(ctx context.Context, codeID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, user := range m.uses {
		if key.codeID == codeID && user == userID {
			count++
		}
	}
	return count, nil
}

func (m *MockDiscountCodeRepository) TrackUsage(ctx context.Context, codeID, userID, orderID int64, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, exists := m.codes[codeID]
	if !exists {
		return repository.ErrCodeNotFound
	}

	key := usageKey{codeID: codeID, orderID: orderID}
	if _, tracked := m.uses[key]; tracked {
		// Дубль заказа - идемпотентный no-op
		return nil
	}

	if code.UsageLimit != nil && code.TimesUsed >= *code.UsageLimit {
		return repository.ErrUsageLimitReached
	}

	m.uses[key] = userID
	code.TimesUsed++
	return nil
}

func (m *MockDiscountCodeRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = make(map[int64]*models.DiscountCode)
	m.uses = make(map[usageKey]int64)
	m.nextID = 1
}
