// Package handler はdetectionフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/transport/http/dto"
	"apple_detector/internal/feature/detection/usecase"
	"apple_detector/internal/platform/session"
)

// DefaultMaxUploadBytes はアップロードの最大サイズ（16MB）です。
const DefaultMaxUploadBytes int64 = 16 << 20

// DetectionUsecase はアップロード画像の検出パイプラインを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type DetectionUsecase interface {
	Detect(ctx context.Context, in usecase.UploadInput) (*entity.Result, error)
}

// HistoryUsecase はセッション単位の結果参照と履歴一覧を定義します。
type HistoryUsecase interface {
	Result(ctx context.Context, sessionID string, id uint) (*entity.Result, error)
	History(ctx context.Context, sessionID string, page int) (*entity.HistoryPage, error)
}

// SessionTracker はブラウザセッションの識別子とフラッシュメッセージを扱います。
type SessionTracker interface {
	SessionID(c *gin.Context) (string, error)
	AddFlash(c *gin.Context, category, message string) error
	Flashes(c *gin.Context) ([]session.Flash, error)
}

// UploadFiles は保存済みアップロード画像を読み出します。
type UploadFiles interface {
	Open(name string) (*os.File, error)
}

// Options はハンドラーの設定です。
type Options struct {
	MaxUploadBytes int64
	Thresholds     entity.ConfidenceThresholds
}

// DetectionHandler は画像アップロード・結果表示・履歴のHTTPリクエストを処理します。
type DetectionHandler struct {
	detect   DetectionUsecase
	history  HistoryUsecase
	sessions SessionTracker
	files    UploadFiles
	opts     Options
}

// NewDetectionHandler はDetectionHandlerの新しいインスタンスを生成します。
func NewDetectionHandler(detect DetectionUsecase, history HistoryUsecase, sessions SessionTracker, files UploadFiles, opts Options) *DetectionHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Thresholds == (entity.ConfidenceThresholds{}) {
		opts.Thresholds = entity.DefaultConfidenceThresholds()
	}
	return &DetectionHandler{
		detect:   detect,
		history:  history,
		sessions: sessions,
		files:    files,
		opts:     opts,
	}
}

// Index はアップロードフォームを表示します。
//
// エンドポイント: GET /
func (h *DetectionHandler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, "index.html", gin.H{})
}

// NotFound は未定義のパスに対してアップロードフォームを404で表示します。
func (h *DetectionHandler) NotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "index.html", gin.H{})
}

// Upload は画像を受け取り検出パイプラインを実行し、結果ページへリダイレクトします。
//
// エンドポイント: POST /upload
// Content-Type: multipart/form-data
// フィールド: file（PNG / JPG / JPEG / WEBP、最大16MB）
func (h *DetectionHandler) Upload(c *gin.Context) {
	result, err := h.runUpload(c)
	if err != nil {
		h.redirectWithFlash(c, "/", uploadMessage(err))
		return
	}
	c.Redirect(http.StatusFound, "/result/"+strconv.FormatUint(uint64(result.Detection.ID), 10))
}

// Result は検出結果を表示します。他セッションの結果は存在しないものとして扱います。
//
// エンドポイント: GET /result/:id
func (h *DetectionHandler) Result(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.redirectWithFlash(c, "/", MsgNotFound)
		return
	}
	sessionID, err := h.sessions.SessionID(c)
	if err != nil {
		slog.Error("セッションの取得に失敗", "error", err)
		h.redirectWithFlash(c, "/", MsgResultError)
		return
	}

	result, err := h.history.Result(c.Request.Context(), sessionID, id)
	if err != nil {
		if errors.Is(err, usecase.ErrDetectionNotFound) {
			h.redirectWithFlash(c, "/", MsgNotFound)
			return
		}
		slog.Error("検出結果の取得に失敗", "error", err, "detection_id", id)
		h.redirectWithFlash(c, "/", MsgResultError)
		return
	}

	h.render(c, http.StatusOK, "result.html", gin.H{
		"Detection": dto.NewDetectionView(*result, h.opts.Thresholds),
	})
}

// History はセッションの検出履歴をページ単位で表示します。
//
// エンドポイント: GET /history?page=1
func (h *DetectionHandler) History(c *gin.Context) {
	sessionID, err := h.sessions.SessionID(c)
	if err != nil {
		slog.Error("セッションの取得に失敗", "error", err)
		h.redirectWithFlash(c, "/", MsgHistoryError)
		return
	}

	page, err := h.history.History(c.Request.Context(), sessionID, parsePage(c.Query("page")))
	if err != nil {
		slog.Error("履歴の取得に失敗", "error", err)
		h.redirectWithFlash(c, "/", MsgHistoryError)
		return
	}

	h.render(c, http.StatusOK, "history.html", gin.H{
		"History": dto.NewHistoryView(*page, h.opts.Thresholds),
	})
}

// UploadedFile はアップロードディレクトリ内の画像を配信します。
//
// エンドポイント: GET /uploads/:filename
func (h *DetectionHandler) UploadedFile(c *gin.Context) {
	name := c.Param("filename")
	f, err := h.files.Open(name)
	if err != nil {
		h.NotFound(c)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		h.NotFound(c)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

// RateLimited はアップロードの頻度制限に達したリクエストを処理します。
func (h *DetectionHandler) RateLimited(c *gin.Context) {
	h.redirectWithFlash(c, "/", MsgRateLimited)
}

// Panic は復旧したパニックの後にトップページへリダイレクトします。
func (h *DetectionHandler) Panic(c *gin.Context, _ any) {
	h.redirectWithFlash(c, "/", MsgInternal)
}

// errTooLarge はアップロードが上限サイズを超えたことを表します。
var errTooLarge = errors.New("request body too large")

// runUpload はマルチパートから画像を取り出してパイプラインを実行します。
func (h *DetectionHandler) runUpload(c *gin.Context) (*entity.Result, error) {
	if c.Request.ContentLength > h.opts.MaxUploadBytes {
		return nil, errTooLarge
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	header, err := c.FormFile("file")
	if c.Request.MultipartForm != nil {
		defer func() { _ = c.Request.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errTooLarge
		}
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		return nil, usecase.ErrNoFile
	}

	sessionID, err := h.sessions.SessionID(c)
	if err != nil {
		slog.Error("セッションの取得に失敗", "error", err)
		return nil, err
	}

	f, err := header.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	return h.detect.Detect(c.Request.Context(), usecase.UploadInput{
		SessionID: sessionID,
		Filename:  header.Filename,
		Content:   f,
	})
}

// uploadMessage はパイプラインのエラーをユーザー向けメッセージに変換します。
func uploadMessage(err error) string {
	switch {
	case errors.Is(err, errTooLarge):
		return MsgTooLarge
	case errors.Is(err, usecase.ErrNoFile):
		return MsgNoFile
	case errors.Is(err, usecase.ErrDisallowedExtension):
		return MsgInvalidType
	case errors.Is(err, usecase.ErrInvalidImage):
		return MsgInvalidImage
	case errors.Is(err, usecase.ErrProcessingFailed):
		return MsgProcessing
	default:
		return MsgUploadFailed
	}
}

// redirectWithFlash はフラッシュメッセージを設定してリダイレクトします。
func (h *DetectionHandler) redirectWithFlash(c *gin.Context, location, message string) {
	if err := h.sessions.AddFlash(c, categoryError, message); err != nil {
		slog.Error("フラッシュメッセージの保存に失敗", "error", err)
	}
	c.Redirect(http.StatusFound, location)
}

// render は保留中のフラッシュメッセージを添えてテンプレートを描画します。
func (h *DetectionHandler) render(c *gin.Context, status int, name string, data gin.H) {
	flashes, err := h.sessions.Flashes(c)
	if err != nil {
		slog.Warn("フラッシュメッセージの取得に失敗", "error", err)
	}
	data["Flashes"] = flashes
	data["MaxUploadMB"] = h.opts.MaxUploadBytes >> 20
	c.HTML(status, name, data)
}

// parseID は正の整数のIDを解析します。
func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// parsePage はページ番号を解析します。不正な値は1ページ目として扱います。
func parsePage(s string) int {
	page, err := strconv.Atoi(s)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
