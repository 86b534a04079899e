// Package router はアプリケーションのルーティングを定義します。
package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	detectionhandler "apple_detector/internal/feature/detection/transport/handler"
	"apple_detector/internal/platform/metrics"
	"apple_detector/internal/platform/telemetry"
	"apple_detector/internal/shared/ratelimiter"
)

// apiPrefix はJSON APIのパス接頭辞です。
const apiPrefix = "/api/"

// Options はルーターに差し込む横断的な部品です。nil の部品は無効として扱います。
type Options struct {
	Health             gin.HandlerFunc
	Metrics            *metrics.DetectionMetrics
	Limiter            ratelimiter.RateLimiterInterface
	MaxMultipartMemory int64
}

func NewRouter(detection *detectionhandler.DetectionHandler, opts Options) *gin.Engine {
	r := gin.New()
	if opts.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}
	// パニックはSentryへ送信し、HTMLはトップページへ、APIは500を返す
	r.Use(telemetry.Recovery(func(c *gin.Context, recovered any) {
		if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			detection.APIPanic(c, recovered)
			return
		}
		detection.Panic(c, recovered)
	}))

	// 導通確認用
	if opts.Health != nil {
		r.GET("/healthz", opts.Health)
		r.HEAD("/healthz", opts.Health)
		r.OPTIONS("/healthz", opts.Health)
	}
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// アップロードは頻度制限の対象
	uploadLimit := passThrough
	apiLimit := passThrough
	if opts.Limiter != nil {
		uploadLimit = ratelimiter.Middleware(opts.Limiter, detection.RateLimited)
		apiLimit = ratelimiter.Middleware(opts.Limiter, detection.APIRateLimited)
	}

	// 画面
	r.GET("/", detection.Index)
	r.POST("/upload", uploadLimit, detection.Upload)
	r.GET("/result/:id", detection.Result)
	r.GET("/history", detection.History)
	r.GET("/uploads/:filename", detection.UploadedFile)

	// JSON API
	v1 := r.Group("/api/v1")
	{
		v1.POST("/detections", apiLimit, detection.CreateDetection)
		v1.GET("/detections", detection.ListDetections)
		v1.GET("/detections/:id", detection.GetDetection)
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			detection.APINotFound(c)
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		detection.NotFound(c)
	})

	return r
}

func passThrough(c *gin.Context) {
	c.Next()
}
