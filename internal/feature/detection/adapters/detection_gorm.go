// Package adapters provides repository implementations for the detection feature.
package adapters

import (
	"context"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

const (
	mysqlDuplicateEntry     = 1062
	postgresUniqueViolation = "23505"
)

// detectionGorm is a GORM implementation of the DetectionRepository interface.
// It works against SQLite, MySQL and PostgreSQL.
type detectionGorm struct {
	db *gorm.DB
}

// Compile-time check to ensure detectionGorm implements DetectionRepository.
var _ usecase.DetectionRepository = (*detectionGorm)(nil)

// NewDetectionRepository creates a new instance of detectionGorm.
func NewDetectionRepository(db *gorm.DB) *detectionGorm {
	return &detectionGorm{db: db}
}

// Create persists a new detection and assigns its ID.
func (r *detectionGorm) Create(ctx context.Context, d *entity.Detection) error {
	model := DetectionModelFromEntity(d)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return usecase.ErrDuplicateFilename
		}
		return err
	}
	d.ID = model.ID
	return nil
}

// FindByID retrieves a detection by its ID.
func (r *detectionGorm) FindByID(ctx context.Context, id uint) (*entity.Detection, error) {
	var model DetectionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usecase.ErrDetectionNotFound
		}
		return nil, err
	}
	d := model.ToEntity()
	return &d, nil
}

// ListBySession returns one page of a session's detections ordered newest first,
// with ties broken by descending ID, along with the session's total count.
func (r *detectionGorm) ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]entity.Detection, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = usecase.DefaultPageSize
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&DetectionModel{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// ページ数で範囲外を判定してから offset を計算する（巨大な page でのオーバーフロー防止）
	pages := (total + int64(pageSize) - 1) / int64(pageSize)
	if total == 0 || int64(page-1) >= pages {
		return []entity.Detection{}, total, nil
	}
	offset := (page - 1) * pageSize

	var models []DetectionModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Order("id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	out := make([]entity.Detection, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToEntity())
	}
	return out, total, nil
}

// FindExistingFilenames returns the subset of names referenced by a detection.
func (r *detectionGorm) FindExistingFilenames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).
		Model(&DetectionModel{}).
		Where("filename IN ?", names).
		Pluck("filename", &found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

// isDuplicateKey reports whether err is a unique constraint violation.
// gorm translates driver errors when TranslateError is enabled; the driver
// specific checks cover connections opened without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
		return true
	}
	return false
}
