package usecase

import (
	"context"
	"log/slog"
	"time"

	"apple_detector/internal/feature/detection/domain/entity"
)

const (
	// DefaultGracePeriod は作成直後のファイルを孤立扱いしないための猶予期間です。
	DefaultGracePeriod = time.Hour
	// reconcileBatchSize は1回の存在確認クエリで扱うファイル名の最大数です。
	reconcileBatchSize = 500
)

// UploadDirectory は孤立ファイル整理のためにアップロードディレクトリを列挙・削除します。
type UploadDirectory interface {
	List(ctx context.Context) ([]entity.StoredFile, error)
	Remove(name string) error
}

// FilenameIndex は保存名がレコードから参照されているかを確認します。
type FilenameIndex interface {
	FindExistingFilenames(ctx context.Context, names []string) ([]string, error)
}

// ReconcileReport は1回の整理処理の結果です。
type ReconcileReport struct {
	Scanned int
	Orphans []string
	Removed int
}

// ReconcileUsecase はどの検出結果からも参照されていないアップロードファイルを削除します。
// リクエスト処理のパイプラインとは独立して動作します。
type ReconcileUsecase struct {
	dir     UploadDirectory
	index   FilenameIndex
	grace   time.Duration
	metrics Metrics
	now     func() time.Time
}

// NewReconcileUsecase は新しい ReconcileUsecase を作成します。
// grace が0以下の場合は DefaultGracePeriod を使用します。
func NewReconcileUsecase(dir UploadDirectory, index FilenameIndex, grace time.Duration, metrics Metrics) *ReconcileUsecase {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ReconcileUsecase{dir: dir, index: index, grace: grace, metrics: metrics, now: time.Now}
}

// Reconcile はアップロードディレクトリを走査し、猶予期間を過ぎた孤立ファイルを削除します。
// dryRun が true の場合は削除せずに候補だけを返します。
func (u *ReconcileUsecase) Reconcile(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	files, err := u.dir.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(files)}
	cutoff := u.now().Add(-u.grace)

	candidates := make([]string, 0, len(files))
	for _, f := range files {
		if f.ModTime.After(cutoff) {
			continue
		}
		candidates = append(candidates, f.Name)
	}

	for start := 0; start < len(candidates); start += reconcileBatchSize {
		end := min(start+reconcileBatchSize, len(candidates))
		batch := candidates[start:end]

		existing, err := u.index.FindExistingFilenames(ctx, batch)
		if err != nil {
			return report, err
		}
		referenced := make(map[string]struct{}, len(existing))
		for _, name := range existing {
			referenced[name] = struct{}{}
		}

		for _, name := range batch {
			if _, ok := referenced[name]; ok {
				continue
			}
			report.Orphans = append(report.Orphans, name)
			if dryRun {
				continue
			}
			if err := u.dir.Remove(name); err != nil {
				slog.Warn("failed to remove orphaned upload", "filename", name, "error", err)
				continue
			}
			report.Removed++
		}
	}

	u.metrics.OrphansRemoved(report.Removed)
	return report, nil
}

// Run は interval ごとに Reconcile を実行し、ctx がキャンセルされると nil を返します。
// 1回の失敗でループを止めず、ログに出力して次の周期を待ちます。
func (u *ReconcileUsecase) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := u.Reconcile(ctx, false)
			if err != nil {
				slog.Error("orphan reconciliation failed", "error", err)
				continue
			}
			if report.Removed > 0 {
				slog.Info("orphaned uploads removed", "scanned", report.Scanned, "removed", report.Removed)
			}
		}
	}
}
