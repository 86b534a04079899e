package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

// mockDetectionRepository はテスト用のDetectionRepositoryモック実装です。
type mockDetectionRepository struct {
	createFn        func(ctx context.Context, d *entity.Detection) error
	findByIDFn      func(ctx context.Context, id uint) (*entity.Detection, error)
	listBySessionFn func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error)
	findExistingFn  func(ctx context.Context, names []string) ([]string, error)
	findByIDCalls   int
	listCalls       int
}

func (m *mockDetectionRepository) Create(ctx context.Context, d *entity.Detection) error {
	if m.createFn != nil {
		return m.createFn(ctx, d)
	}
	return nil
}

func (m *mockDetectionRepository) FindByID(ctx context.Context, id uint) (*entity.Detection, error) {
	m.findByIDCalls++
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, usecase.ErrDetectionNotFound
}

func (m *mockDetectionRepository) ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
	m.listCalls++
	if m.listBySessionFn != nil {
		return m.listBySessionFn(ctx, sessionID, page, pageSize)
	}
	return []entity.Detection{}, 0, nil
}

func (m *mockDetectionRepository) FindExistingFilenames(ctx context.Context, names []string) ([]string, error) {
	if m.findExistingFn != nil {
		return m.findExistingFn(ctx, names)
	}
	return nil, nil
}

func sampleDetection() entity.Detection {
	return entity.Detection{
		ID:               7,
		SessionID:        "sess-1",
		Filename:         "abc.png",
		OriginalFilename: "leaf.png",
		DiseaseType:      "Scab_Apple",
		Confidence:       87.5,
		Timestamp:        time.Date(2024, 4, 2, 8, 30, 15, 123456000, time.UTC),
	}
}

// TestNewCachingDetectionRepository_Defaults はデフォルト値（TTLとnamespace）が正しく設定されることを検証します。
func TestNewCachingDetectionRepository_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		ttl               time.Duration
		namespace         string
		expectedTTL       time.Duration
		expectedNamespace string
	}{
		{name: "default values when zero/empty", expectedTTL: 10 * time.Minute, expectedNamespace: "detections"},
		{name: "negative ttl uses default", ttl: -time.Minute, expectedTTL: 10 * time.Minute, expectedNamespace: "detections"},
		{name: "custom values preserved", ttl: time.Minute, namespace: "custom", expectedTTL: time.Minute, expectedNamespace: "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := NewCachingDetectionRepository(nil, tt.ttl, &mockDetectionRepository{}, tt.namespace)
			assert.Equal(t, tt.expectedTTL, repo.ttl)
			assert.Equal(t, tt.expectedNamespace, repo.namespace)
		})
	}
}

// TestCachingDetectionRepository_NilStore はストアがnilの場合にキャッシュをバイパスすることを検証します。
func TestCachingDetectionRepository_NilStore(t *testing.T) {
	t.Parallel()

	d := sampleDetection()
	inner := &mockDetectionRepository{
		findByIDFn: func(ctx context.Context, id uint) (*entity.Detection, error) { return &d, nil },
	}
	repo := NewCachingDetectionRepository(NewRedisStore(nil), 0, inner, "")

	for i := 0; i < 2; i++ {
		got, err := repo.FindByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, d, *got)
	}
	assert.Equal(t, 2, inner.findByIDCalls)
}

// TestCachingDetectionRepository_FindByID_CacheHit はキャッシュヒット時に内部リポジトリを呼ばないことを検証します。
func TestCachingDetectionRepository_FindByID_CacheHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	d := sampleDetection()
	cached, _ := json.Marshal(d)
	mock.ExpectGet("detections:id:7").SetVal(string(cached))

	inner := &mockDetectionRepository{}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	got, err := repo.FindByID(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, d.Filename, got.Filename)
	assert.True(t, d.Timestamp.Equal(got.Timestamp))
	assert.Zero(t, inner.findByIDCalls, "inner repository should not be called on cache hit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_FindByID_CacheMiss はキャッシュミス時にDBから取得してキャッシュに保存することを検証します。
func TestCachingDetectionRepository_FindByID_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	d := sampleDetection()
	expectedJSON, _ := json.Marshal(&d)
	mock.ExpectGet("detections:id:7").RedisNil()
	mock.ExpectSet("detections:id:7", expectedJSON, 5*time.Minute).SetVal("OK")

	inner := &mockDetectionRepository{
		findByIDFn: func(ctx context.Context, id uint) (*entity.Detection, error) { return &d, nil },
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	got, err := repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, d, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_FindByID_NotFoundIsNotCached は存在しないIDの結果をキャッシュしないことを検証します。
func TestCachingDetectionRepository_FindByID_NotFoundIsNotCached(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectGet("detections:id:9").RedisNil()

	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, &mockDetectionRepository{}, "detections")
	got, err := repo.FindByID(context.Background(), 9)

	assert.ErrorIs(t, err, usecase.ErrDetectionNotFound)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_FindByID_CorruptedCache は破損したキャッシュを削除してDBにフォールバックすることを検証します。
func TestCachingDetectionRepository_FindByID_CorruptedCache(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	d := sampleDetection()
	expectedJSON, _ := json.Marshal(&d)
	mock.ExpectGet("detections:id:7").SetVal("invalid json")
	mock.ExpectDel("detections:id:7").SetVal(1)
	mock.ExpectSet("detections:id:7", expectedJSON, 5*time.Minute).SetVal("OK")

	inner := &mockDetectionRepository{
		findByIDFn: func(ctx context.Context, id uint) (*entity.Detection, error) { return &d, nil },
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	got, err := repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_ListBySession_CacheMiss は履歴ページがセッション単位のキーで保存されることを検証します。
func TestCachingDetectionRepository_ListBySession_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	items := []entity.Detection{sampleDetection()}
	expectedJSON, _ := json.Marshal(historyEntry{Items: items, Total: 13})
	mock.ExpectGet("detections:gen:sess-1").SetVal("3")
	mock.ExpectGet("detections:history:sess-1:3:2:12").RedisNil()
	mock.ExpectSet("detections:history:sess-1:3:2:12", expectedJSON, 5*time.Minute).SetVal("OK")

	inner := &mockDetectionRepository{
		listBySessionFn: func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
			return items, 13, nil
		},
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	got, total, err := repo.ListBySession(context.Background(), "sess-1", 2, 12)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(13), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingDetectionRepository_ListBySession_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("database error")
	mock.ExpectGet("detections:gen:sess-1").RedisNil()
	mock.ExpectGet("detections:history:sess-1:0:1:12").RedisNil()

	inner := &mockDetectionRepository{
		listBySessionFn: func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
			return nil, 0, expectedErr
		},
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	_, _, err := repo.ListBySession(context.Background(), "sess-1", 0, 12)
	assert.ErrorIs(t, err, expectedErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_ListBySession_GenerationError は世代キーが読めない場合にキャッシュを使わず内側のリポジトリを読むことを検証します。
func TestCachingDetectionRepository_ListBySession_GenerationError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(mock redismock.ClientMock)
	}{
		{
			name:  "error: redis unavailable",
			setup: func(mock redismock.ClientMock) { mock.ExpectGet("detections:gen:sess-1").SetErr(errors.New("connection refused")) },
		},
		{
			name:  "error: generation is not a number",
			setup: func(mock redismock.ClientMock) { mock.ExpectGet("detections:gen:sess-1").SetVal("abc") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb, mock := redismock.NewClientMock()
			defer func() { _ = rdb.Close() }()
			tt.setup(mock)

			inner := &mockDetectionRepository{
				listBySessionFn: func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
					return []entity.Detection{sampleDetection()}, 1, nil
				},
			}
			repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

			got, total, err := repo.ListBySession(context.Background(), "sess-1", 1, 12)
			require.NoError(t, err)
			assert.Len(t, got, 1)
			assert.Equal(t, int64(1), total)
			assert.Equal(t, 1, inner.listCalls)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestCachingDetectionRepository_Create_Invalidation はCreate後にそのセッションの履歴世代が進むことを検証します。
func TestCachingDetectionRepository_Create_Invalidation(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectTxPipeline()
	mock.ExpectIncr("detections:gen:sess-1").SetVal(4)
	mock.ExpectExpire("detections:gen:sess-1", 10*time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, &mockDetectionRepository{}, "detections")
	d := sampleDetection()
	require.NoError(t, repo.Create(context.Background(), &d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingDetectionRepository_Create_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	inner := &mockDetectionRepository{
		createFn: func(ctx context.Context, d *entity.Detection) error { return usecase.ErrDuplicateFilename },
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), 5*time.Minute, inner, "detections")

	d := sampleDetection()
	err := repo.Create(context.Background(), &d)
	assert.ErrorIs(t, err, usecase.ErrDuplicateFilename)
	// No invalidation is attempted when the write fails.
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachingDetectionRepository_MemoryStore はgo-cacheによるプロセス内キャッシュで読み取りと無効化が機能することを検証します。
func TestCachingDetectionRepository_MemoryStore(t *testing.T) {
	t.Parallel()

	stored := []entity.Detection{}
	inner := &mockDetectionRepository{
		createFn: func(ctx context.Context, d *entity.Detection) error {
			d.ID = uint(len(stored) + 1)
			stored = append([]entity.Detection{*d}, stored...)
			return nil
		},
		listBySessionFn: func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
			return append([]entity.Detection{}, stored...), int64(len(stored)), nil
		},
	}
	repo := NewCachingDetectionRepository(NewMemoryStore(time.Minute, time.Minute), time.Minute, inner, "")
	ctx := context.Background()

	got, total, err := repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, total)

	// Served from cache.
	_, _, err = repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.listCalls)

	d := sampleDetection()
	require.NoError(t, repo.Create(ctx, &d))

	got, total, err = repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.listCalls)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "abc.png", got[0].Filename)
}

// TestCachingDetectionRepository_CreateDuringListMiss は、キャッシュミス中の読み取りと並行してCreateが走った場合に
// 古いページがキャッシュに残っても以後の読み取りで返されないことを検証します。
func TestCachingDetectionRepository_CreateDuringListMiss(t *testing.T) {
	t.Parallel()

	var repo *CachingDetectionRepository
	stored := []entity.Detection{}
	raced := false
	inner := &mockDetectionRepository{
		createFn: func(ctx context.Context, d *entity.Detection) error {
			d.ID = uint(len(stored) + 1)
			stored = append([]entity.Detection{*d}, stored...)
			return nil
		},
	}
	inner.listBySessionFn = func(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
		snapshot := append([]entity.Detection{}, stored...)
		if !raced {
			// DBを読んだ後、キャッシュへ書き込む前に別リクエストのCreateが完了する
			raced = true
			d := sampleDetection()
			require.NoError(t, repo.Create(ctx, &d))
		}
		return snapshot, int64(len(snapshot)), nil
	}
	repo = NewCachingDetectionRepository(NewMemoryStore(time.Minute, time.Minute), time.Minute, inner, "")
	ctx := context.Background()

	got, total, err := repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, total)

	got, total, err = repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.listCalls)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "abc.png", got[0].Filename)

	// The fresh page is cached under the new generation.
	_, _, err = repo.ListBySession(ctx, "sess-1", 1, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.listCalls)
}

// TestMemoryStore_Incr はgo-cache上の世代カウンタが0から加算されGetで10進文字列として読めることを検証します。
func TestMemoryStore_Incr(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Minute, time.Minute)
	ctx := context.Background()

	n, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	b, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(b))

	require.NoError(t, s.Set(ctx, "bad", []byte("x"), time.Minute))
	_, err = s.Incr(ctx, "bad", time.Minute)
	assert.Error(t, err)
}

func TestCachingDetectionRepository_FindExistingFilenames_PassThrough(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	inner := &mockDetectionRepository{
		findExistingFn: func(ctx context.Context, names []string) ([]string, error) { return names[:1], nil },
	}
	repo := NewCachingDetectionRepository(NewRedisStore(rdb), time.Minute, inner, "")

	got, err := repo.FindExistingFilenames(context.Background(), []string{"a.png", "b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSafe はsafe関数がRedisキーで問題となる文字を正しくエスケープすることを検証します。
func TestSafe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"sess-1", "sess-1"},
		{"a b", "a_b"},
		{"key:value", "key_value"},
		{"glob*", "glob_"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, safe(tt.input), tt.input)
	}
}
