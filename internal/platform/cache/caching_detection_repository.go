package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

var _ usecase.DetectionRepository = (*CachingDetectionRepository)(nil)

// CachingDetectionRepository decorates a DetectionRepository with a cache.
// Detections are immutable, so lookups by id are cached until they expire.
// History pages are keyed by a per-session generation that Create bumps, so a
// page filled from a read that raced a Create is never served afterwards.
type CachingDetectionRepository struct {
	inner     usecase.DetectionRepository
	store     Store
	ttl       time.Duration
	namespace string
}

// NewCachingDetectionRepository decorates a DetectionRepository.
// If store is nil, every call goes straight to inner.
// If ttl is 0, it defaults to 10 minutes. If namespace is empty, it uses "detections".
func NewCachingDetectionRepository(store Store, ttl time.Duration, inner usecase.DetectionRepository, namespace string) *CachingDetectionRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if namespace == "" {
		namespace = "detections"
	}
	return &CachingDetectionRepository{
		inner:     inner,
		store:     store,
		ttl:       ttl,
		namespace: namespace,
	}
}

// historyEntry is the cached form of one history page.
type historyEntry struct {
	Items []entity.Detection `json:"items"`
	Total int64              `json:"total"`
}

// Create persists the detection and moves the session to a new history generation.
func (c *CachingDetectionRepository) Create(ctx context.Context, d *entity.Detection) error {
	if err := c.inner.Create(ctx, d); err != nil {
		return err
	}
	if c.store == nil {
		return nil
	}
	// 世代キーは履歴ページより長く保持し、期限切れで古い世代に戻らないようにする
	if _, err := c.store.Incr(ctx, c.generationKey(d.SessionID), 2*c.ttl); err != nil {
		slog.Warn("failed to bump history cache generation", "session_id", d.SessionID, "error", err)
	}
	return nil
}

// FindByID returns a detection, checking the cache first.
// Not-found results are never cached.
func (c *CachingDetectionRepository) FindByID(ctx context.Context, id uint) (*entity.Detection, error) {
	if c.store == nil {
		return c.inner.FindByID(ctx, id)
	}

	key := c.detectionKey(id)
	if b, ok, err := c.store.Get(ctx, key); err == nil && ok && len(b) > 0 {
		var out entity.Detection
		if err := json.Unmarshal(b, &out); err == nil {
			return &out, nil
		}
		// Delete corrupted cache entry
		_ = c.store.Del(ctx, key)
	}

	out, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		_ = c.store.Set(ctx, key, b, c.ttl)
	}
	return out, nil
}

// ListBySession returns one history page, checking the cache first.
func (c *CachingDetectionRepository) ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
	if c.store == nil {
		return c.inner.ListBySession(ctx, sessionID, page, pageSize)
	}
	if page < 1 {
		page = 1
	}

	gen, err := c.generation(ctx, sessionID)
	if err != nil {
		// 世代が読めない場合はキャッシュを使わない
		return c.inner.ListBySession(ctx, sessionID, page, pageSize)
	}

	key := c.historyKey(sessionID, gen, page, pageSize)
	if b, ok, err := c.store.Get(ctx, key); err == nil && ok && len(b) > 0 {
		var out historyEntry
		if err := json.Unmarshal(b, &out); err == nil {
			if out.Items == nil {
				out.Items = []entity.Detection{}
			}
			return out.Items, out.Total, nil
		}
		_ = c.store.Del(ctx, key)
	}

	items, total, err := c.inner.ListBySession(ctx, sessionID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if b, err := json.Marshal(historyEntry{Items: items, Total: total}); err == nil {
		_ = c.store.Set(ctx, key, b, c.ttl)
	}
	return items, total, nil
}

// FindExistingFilenames is not cached: the reconciler must see committed rows.
func (c *CachingDetectionRepository) FindExistingFilenames(ctx context.Context, names []string) ([]string, error) {
	return c.inner.FindExistingFilenames(ctx, names)
}

func (c *CachingDetectionRepository) detectionKey(id uint) string {
	return fmt.Sprintf("%s:id:%d", c.namespace, id)
}

// generation returns the session's current history generation; 0 if none.
func (c *CachingDetectionRepository) generation(ctx context.Context, sessionID string) (int64, error) {
	b, ok, err := c.store.Get(ctx, c.generationKey(sessionID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(string(b), 10, 64)
}

func (c *CachingDetectionRepository) generationKey(sessionID string) string {
	return fmt.Sprintf("%s:gen:%s", c.namespace, safe(sessionID))
}

func (c *CachingDetectionRepository) historyKey(sessionID string, gen int64, page, pageSize int) string {
	return fmt.Sprintf("%s:history:%s:%d:%d:%d", c.namespace, safe(sessionID), gen, page, pageSize)
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return s
}
