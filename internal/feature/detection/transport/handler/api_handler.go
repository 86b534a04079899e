package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"apple_detector/internal/api"
	"apple_detector/internal/feature/detection/transport/http/dto"
	"apple_detector/internal/feature/detection/usecase"
)

// CreateDetection は画像を受け取り検出パイプラインを実行し、結果をJSONで返します。
//
// エンドポイント: POST /api/v1/detections
// Content-Type: multipart/form-data
// フィールド: file
func (h *DetectionHandler) CreateDetection(c *gin.Context) {
	result, err := h.runUpload(c)
	if err != nil {
		status, msg := apiError(err)
		c.JSON(status, api.ErrorResponse{Error: msg})
		return
	}

	c.Header("Location", "/api/v1/detections/"+strconv.FormatUint(uint64(result.Detection.ID), 10))
	c.JSON(http.StatusCreated, dto.NewDetectionResponse(*result, h.opts.Thresholds))
}

// GetDetection はセッションに属する検出結果を1件返します。
//
// エンドポイント: GET /api/v1/detections/:id
func (h *DetectionHandler) GetDetection(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: MsgNotFound})
		return
	}
	sessionID, err := h.sessions.SessionID(c)
	if err != nil {
		slog.Error("セッションの取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: MsgResultError})
		return
	}

	result, err := h.history.Result(c.Request.Context(), sessionID, id)
	if err != nil {
		if errors.Is(err, usecase.ErrDetectionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: MsgNotFound})
			return
		}
		slog.Error("検出結果の取得に失敗", "error", err, "detection_id", id)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: MsgResultError})
		return
	}

	c.JSON(http.StatusOK, dto.NewDetectionResponse(*result, h.opts.Thresholds))
}

// ListDetections はセッションの検出履歴を1ページ分返します。
//
// エンドポイント: GET /api/v1/detections?page=1
func (h *DetectionHandler) ListDetections(c *gin.Context) {
	sessionID, err := h.sessions.SessionID(c)
	if err != nil {
		slog.Error("セッションの取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: MsgHistoryError})
		return
	}

	page, err := h.history.History(c.Request.Context(), sessionID, parsePage(c.Query("page")))
	if err != nil {
		slog.Error("履歴の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: MsgHistoryError})
		return
	}

	c.JSON(http.StatusOK, dto.NewHistoryResponse(*page, h.opts.Thresholds))
}

// APIRateLimited は頻度制限に達したAPIリクエストに429を返します。
func (h *DetectionHandler) APIRateLimited(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, api.ErrorResponse{Error: MsgRateLimited})
}

// APIPanic は復旧したパニックの後に500を返します。
func (h *DetectionHandler) APIPanic(c *gin.Context, _ any) {
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: MsgInternal})
}

// APINotFound は未定義のAPIパスに404を返します。
func (h *DetectionHandler) APINotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "not found"})
}

// apiError はパイプラインのエラーをHTTPステータスとメッセージに変換します。
func apiError(err error) (int, string) {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, MsgTooLarge
	case errors.Is(err, usecase.ErrNoFile):
		return http.StatusBadRequest, MsgNoFile
	case errors.Is(err, usecase.ErrDisallowedExtension):
		return http.StatusBadRequest, MsgInvalidType
	case errors.Is(err, usecase.ErrInvalidImage):
		return http.StatusUnprocessableEntity, MsgInvalidImage
	case errors.Is(err, usecase.ErrInferenceUnavailable):
		return http.StatusServiceUnavailable, MsgModelUnavailable
	case errors.Is(err, usecase.ErrProcessingFailed):
		return http.StatusUnprocessableEntity, MsgProcessing
	default:
		return http.StatusInternalServerError, MsgUploadFailed
	}
}
