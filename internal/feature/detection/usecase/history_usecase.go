package usecase

import (
	"context"
	"errors"

	"apple_detector/internal/feature/detection/domain/entity"
)

// DefaultPageSize は履歴一覧の1ページあたりの件数です。
const DefaultPageSize = 12

// historyUsecase はセッション単位の結果参照と履歴一覧を提供します。
type historyUsecase struct {
	repo      DetectionRepository
	knowledge KnowledgeBase
	pageSize  int
}

// NewHistoryUsecase はhistoryUsecaseの新しいインスタンスを生成します。
// pageSize が0以下の場合は DefaultPageSize を使用します。
func NewHistoryUsecase(repo DetectionRepository, knowledge KnowledgeBase, pageSize int) *historyUsecase {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &historyUsecase{repo: repo, knowledge: knowledge, pageSize: pageSize}
}

// Result は指定IDの検出結果を返します。
// 存在しないIDと他セッションのIDは区別せず、どちらも ErrDetectionNotFound を返します。
func (u *historyUsecase) Result(ctx context.Context, sessionID string, id uint) (*entity.Result, error) {
	d, err := u.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDetectionNotFound) {
			return nil, ErrDetectionNotFound
		}
		return nil, err
	}
	if !d.VisibleTo(sessionID) {
		return nil, ErrDetectionNotFound
	}
	return &entity.Result{Detection: *d, Disease: u.knowledge.Lookup(d.DiseaseType)}, nil
}

// History はセッションの検出結果を新しい順に1ページ分返します。
// page が1未満の場合は1ページ目として扱い、範囲外のページは空のページを返します。
func (u *historyUsecase) History(ctx context.Context, sessionID string, page int) (*entity.HistoryPage, error) {
	if page < 1 {
		page = 1
	}

	ds, total, err := u.repo.ListBySession(ctx, sessionID, page, u.pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]entity.Result, 0, len(ds))
	for _, d := range ds {
		items = append(items, entity.Result{Detection: d, Disease: u.knowledge.Lookup(d.DiseaseType)})
	}

	return &entity.HistoryPage{
		Items:      items,
		Page:       page,
		PageSize:   u.pageSize,
		Total:      total,
		TotalPages: int((total + int64(u.pageSize) - 1) / int64(u.pageSize)),
	}, nil
}
