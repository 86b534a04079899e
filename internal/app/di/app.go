package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"apple_detector/internal/app/router"
	detectionadapters "apple_detector/internal/feature/detection/adapters"
	"apple_detector/internal/feature/detection/adapters/knowledge"
	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/adapters/storage"
	"apple_detector/internal/feature/detection/domain/entity"
	detectionhandler "apple_detector/internal/feature/detection/transport/handler"
	"apple_detector/internal/feature/detection/usecase"
	"apple_detector/internal/platform/cache"
	"apple_detector/internal/platform/config"
	platformhandler "apple_detector/internal/platform/http/handler"
	"apple_detector/internal/platform/imaging"
	"apple_detector/internal/platform/metrics"
	"apple_detector/internal/platform/session"
	"apple_detector/internal/shared/ratelimiter"
	"apple_detector/web"
)

// rateLimiterIdle is how long an idle client's bucket is kept.
const rateLimiterIdle = 10 * time.Minute

// App holds the wired server components and the resources they own.
type App struct {
	Router     *gin.Engine
	Reconciler *usecase.ReconcileUsecase
	Classifier *model.Classifier
	DB         *gorm.DB

	redis *redisv9.Client
	store *storage.LocalStore
}

// NewApp wires every component from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	gdb, err := NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.DB = gdb
	app.redis = NewRedis(ctx, cfg.Redis)

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload directory: %w", err)
	}
	app.store = store

	kb, err := knowledge.Load(cfg.Knowledge.Path)
	if err != nil {
		return nil, err
	}

	preprocessor, err := imaging.NewPreprocessor(cfg.Model.InputSize, cfg.Model.Interpolation)
	if err != nil {
		return nil, err
	}

	var (
		pipelineMetrics usecase.Metrics
		m               *metrics.DetectionMetrics
	)
	if cfg.Metrics.Enabled {
		m, err = metrics.New()
		if err != nil {
			return nil, err
		}
		pipelineMetrics = m
	}

	app.Classifier = NewClassifier(ctx, cfg.Model, preprocessor.InputShape())
	if m != nil {
		m.SetModelAvailable(app.Classifier.Available())
	}

	// Repository
	detectionRepo := detectionadapters.NewDetectionRepository(gdb)
	cachedRepo := cache.NewCachingDetectionRepository(NewCacheStore(app.redis, cfg.Cache), cfg.Cache.TTL, detectionRepo, "detections")

	// Usecase
	detectUC := usecase.NewDetectionUsecase(store, imaging.NewValidator(cfg.Server.MaxImagePixels), preprocessor, app.Classifier, kb, cachedRepo, pipelineMetrics)
	historyUC := usecase.NewHistoryUsecase(cachedRepo, kb, cfg.History.PageSize)
	app.Reconciler = usecase.NewReconcileUsecase(store, detectionRepo, cfg.Reconcile.GracePeriod, pipelineMetrics)

	// Handler
	tracker := session.NewTracker(session.NewStore(app.redis, cfg.Session.Secret, session.Options{
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	}), cfg.Session.CookieName)
	detectionH := detectionhandler.NewDetectionHandler(detectUC, historyUC, tracker, store, detectionhandler.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Thresholds: entity.ConfidenceThresholds{
			High:   cfg.Display.ConfidenceHigh,
			Medium: cfg.Display.ConfidenceMedium,
		},
	})

	opts := router.Options{
		Health:             platformhandler.NewHealth(inferenceStatus(app.Classifier)),
		MaxMultipartMemory: cfg.Server.MaxUploadBytes,
	}
	if m != nil {
		// nil のポインタをインターフェースに入れないよう、有効時のみ設定する
		opts.Metrics = m
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimiter.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, rateLimiterIdle)
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	app.Router = router.NewRouter(detectionH, opts)
	app.Router.SetHTMLTemplate(tmpl)

	ok = true
	return app, nil
}

// Close releases the classifier, Redis, the upload directory and the database.
func (a *App) Close() {
	var errs []error
	if a.Classifier != nil {
		errs = append(errs, a.Classifier.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("failed to release resources", "error", err)
	}
}

func inferenceStatus(c *model.Classifier) platformhandler.InferenceStatus {
	return func() (bool, string) {
		if c.Available() {
			return true, ""
		}
		if err := c.Reason(); err != nil {
			return false, err.Error()
		}
		return false, "model not loaded"
	}
}
