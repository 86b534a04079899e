package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"apple_detector/internal/feature/detection/domain/entity"
)

// StoredImage はアップロードディレクトリに保存された画像を表します。
type StoredImage struct {
	Name string // 生成された保存名（<uuid>.<ext>）
	Path string // 検証・前処理で読み込むためのファイルパス
}

// ImageStore はアップロード画像の保存先を抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type ImageStore interface {
	// Save は衝突しない一意な名前で内容を保存します。
	Save(ctx context.Context, ext string, r io.Reader) (StoredImage, error)
	// Remove は保存済みの画像を削除します。存在しない場合はエラーにしません。
	Remove(name string) error
}

// ImageValidator はアップロード画像の形式を検証します。
type ImageValidator interface {
	// AllowedExtension は拡張子が受け付け可能な画像形式かどうかを返します。
	AllowedExtension(ext string) bool
	// Validate は保存済みファイルが構造的に正しい画像であることを確認します。
	Validate(path string) error
}

// Preprocessor は検証済み画像を分類器の入力テンソルに変換します。
type Preprocessor interface {
	Preprocess(ctx context.Context, path string) (entity.Tensor, error)
}

// Classifier は起動時に読み込まれたモデルをラップします。
// Infer は Labels と同じ長さの確率ベクトルを返します。
type Classifier interface {
	Labels() []string
	Infer(ctx context.Context, input entity.Tensor) ([]float32, error)
}

// KnowledgeBase は予測ラベルから表示用の病害情報を引きます。失敗しません。
type KnowledgeBase interface {
	Lookup(label string) entity.DiseaseInfo
}

// DetectionRepository は検出結果の永続化レイヤーを抽象化します。
type DetectionRepository interface {
	// Create は検出結果を保存し、採番されたIDを d.ID に設定します。
	Create(ctx context.Context, d *entity.Detection) error
	// FindByID はIDで検出結果を取得します。存在しない場合は ErrDetectionNotFound を返します。
	FindByID(ctx context.Context, id uint) (*entity.Detection, error)
	// ListBySession はセッションの検出結果を新しい順に1ページ分返し、総件数も返します。
	ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error)
	// FindExistingFilenames は names のうちレコードが参照している保存名を返します。
	FindExistingFilenames(ctx context.Context, names []string) ([]string, error)
}

// Metrics はパイプラインの計測値を受け取ります。nil の場合は計測しません。
type Metrics interface {
	StageCompleted(stage Stage, elapsed time.Duration)
	PipelineFailed(stage Stage, kind error)
	PipelineSucceeded(label string, confidence float64)
	OrphansRemoved(n int)
}

// UploadInput は1回のアップロード要求です。
type UploadInput struct {
	SessionID string
	Filename  string
	Content   io.Reader
}

// detectionUsecase はアップロード画像の検証・前処理・分類・保存を順に実行します。
type detectionUsecase struct {
	store        ImageStore
	validator    ImageValidator
	preprocessor Preprocessor
	classifier   Classifier
	knowledge    KnowledgeBase
	repo         DetectionRepository
	metrics      Metrics
	now          func() time.Time
}

// NewDetectionUsecase はdetectionUsecaseの新しいインスタンスを生成します。
func NewDetectionUsecase(
	store ImageStore,
	validator ImageValidator,
	preprocessor Preprocessor,
	classifier Classifier,
	knowledge KnowledgeBase,
	repo DetectionRepository,
	metrics Metrics,
) *detectionUsecase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &detectionUsecase{
		store:        store,
		validator:    validator,
		preprocessor: preprocessor,
		classifier:   classifier,
		knowledge:    knowledge,
		repo:         repo,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Detect はアップロード1件に対してパイプラインを実行します。
//
// 状態遷移: received → saved → validated → preprocessed → classified → persisted。
// 保存後のどの段階で失敗しても保存済みファイルは削除され、
// 返されるエラーは *StageError でセンチネルエラーをラップします。
func (u *detectionUsecase) Detect(ctx context.Context, in UploadInput) (*entity.Result, error) {
	// received → saved
	if in.Content == nil || strings.TrimSpace(in.Filename) == "" {
		return nil, u.fail(StageSaved, ErrNoFile, nil)
	}
	ext := Extension(in.Filename)
	if ext == "" || !u.validator.AllowedExtension(ext) {
		return nil, u.fail(StageSaved, ErrDisallowedExtension, fmt.Errorf("extension %q", ext))
	}
	originalName := SanitizeFilename(in.Filename, ext)

	started := time.Now()
	stored, err := u.store.Save(ctx, ext, in.Content)
	if err != nil {
		return nil, u.fail(StageSaved, ErrStorage, err)
	}
	u.metrics.StageCompleted(StageSaved, time.Since(started))

	// saved → validated
	started = time.Now()
	if err := u.validator.Validate(stored.Path); err != nil {
		u.discard(stored)
		return nil, u.fail(StageValidated, ErrInvalidImage, err)
	}
	u.metrics.StageCompleted(StageValidated, time.Since(started))

	// validated → preprocessed
	started = time.Now()
	tensor, err := u.preprocessor.Preprocess(ctx, stored.Path)
	if err != nil {
		u.discard(stored)
		return nil, u.fail(StagePreprocessed, ErrProcessingFailed, err)
	}
	u.metrics.StageCompleted(StagePreprocessed, time.Since(started))

	// preprocessed → classified
	started = time.Now()
	probs, err := u.classifier.Infer(ctx, tensor)
	if err != nil {
		u.discard(stored)
		return nil, u.fail(StageClassified, ErrProcessingFailed, err)
	}
	label, confidence, err := topClass(probs, u.classifier.Labels())
	if err != nil {
		u.discard(stored)
		return nil, u.fail(StageClassified, ErrProcessingFailed, err)
	}
	u.metrics.StageCompleted(StageClassified, time.Since(started))

	// classified → persisted
	started = time.Now()
	d := &entity.Detection{
		SessionID:        in.SessionID,
		Filename:         stored.Name,
		OriginalFilename: originalName,
		DiseaseType:      label,
		Confidence:       confidence,
		Timestamp:        u.now().UTC().Truncate(time.Microsecond),
	}
	if err := u.repo.Create(ctx, d); err != nil {
		u.discard(stored)
		return nil, u.fail(StagePersisted, ErrStorage, err)
	}
	u.metrics.StageCompleted(StagePersisted, time.Since(started))
	u.metrics.PipelineSucceeded(label, confidence)

	slog.Info("detection persisted",
		"detection_id", d.ID,
		"disease_type", label,
		"confidence", confidence,
		"filename", stored.Name,
	)

	return &entity.Result{Detection: *d, Disease: u.knowledge.Lookup(label)}, nil
}

// fail はパイプラインを error 状態へ遷移させ、ログと計測を記録します。
func (u *detectionUsecase) fail(stage Stage, kind, cause error) error {
	u.metrics.PipelineFailed(stage, kind)
	switch kind {
	case ErrStorage:
		slog.Error("detection pipeline failed", "stage", stage, "kind", kind, "error", cause)
	default:
		slog.Warn("detection pipeline rejected upload", "stage", stage, "kind", kind, "error", cause)
	}
	return &StageError{Stage: stage, Kind: kind, Err: cause}
}

// discard は失敗したパイプラインで保存済みのファイルを削除します。
func (u *detectionUsecase) discard(stored StoredImage) {
	if err := u.store.Remove(stored.Name); err != nil {
		slog.Error("failed to remove rejected upload", "filename", stored.Name, "error", err)
	}
}

// topClass は確率ベクトルの最大クラスとその確率をパーセントで返します。
// 同率の場合は先に現れたクラスを採用します。
func topClass(probs []float32, labels []string) (string, float64, error) {
	if len(labels) == 0 {
		return "", 0, ErrInferenceUnavailable
	}
	if len(probs) != len(labels) {
		return "", 0, fmt.Errorf("model returned %d scores for %d labels", len(probs), len(labels))
	}

	best := 0
	for i, p := range probs {
		if math.IsNaN(float64(p)) {
			return "", 0, fmt.Errorf("model returned NaN for class %d", i)
		}
		if p > probs[best] {
			best = i
		}
	}

	confidence := float64(probs[best]) * 100
	confidence = math.Max(0, math.Min(100, confidence))
	return labels[best], confidence, nil
}

// nopMetrics は計測を無視するMetrics実装です。
type nopMetrics struct{}

func (nopMetrics) StageCompleted(Stage, time.Duration) {}
func (nopMetrics) PipelineFailed(Stage, error)         {}
func (nopMetrics) PipelineSucceeded(string, float64)   {}
func (nopMetrics) OrphansRemoved(int)                  {}
