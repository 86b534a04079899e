// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// InferenceStatus は分類器の利用可否を返します。reason は利用不可の理由です。
type InferenceStatus func() (available bool, reason string)

// HealthResponse は /healthz のレスポンスです。
type HealthResponse struct {
	Status    string `json:"status"`    // ok / degraded
	Inference string `json:"inference"` // available / unavailable
	Reason    string `json:"reason,omitempty"`
}

// NewHealth はサービスヘルスチェック用の /healthz ハンドラーを返します。
// モデルが読み込めていない場合も履歴の閲覧は可能なため、200 で degraded を返します。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func NewHealth(status InferenceStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 明示的にキャッシュを防止
		c.Header("Cache-Control", "no-store")

		switch c.Request.Method {
		case http.MethodHead:
			c.Status(http.StatusOK)
			return
		case http.MethodOptions:
			c.Status(http.StatusNoContent)
			return
		}

		resp := HealthResponse{Status: "ok", Inference: "available"}
		if status != nil {
			if ok, reason := status(); !ok {
				resp = HealthResponse{Status: "degraded", Inference: "unavailable", Reason: reason}
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
