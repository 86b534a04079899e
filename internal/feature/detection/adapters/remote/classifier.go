// Package remote は TensorFlow Serving の REST API で推論を行う分類器を提供します。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"apple_detector/internal/feature/detection/adapters/model"
	"apple_detector/internal/feature/detection/domain/entity"
)

// maxErrorBody はエラーレスポンスからログに残す最大バイト数です。
const maxErrorBody = 512

// predictRequest は TensorFlow Serving の行形式リクエストです。
type predictRequest struct {
	Instances []any `json:"instances"`
}

// predictResponse は TensorFlow Serving の行形式レスポンスです。
type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// Classifier は外部の推論サーバーへテンソルを送信するBackend実装です。
type Classifier struct {
	cfg        Config
	client     *http.Client
	outputSize int
}

// ClassifierがBackendを実装していることをコンパイル時に検証します。
var _ model.Backend = (*Classifier)(nil)

// Open は推論サーバーにゼロテンソルを送信し、出力ベクトルの長さを確認してから
// Classifierを返します。サーバーに到達できない場合はエラーを返します。
func Open(ctx context.Context, cfg Config, client *http.Client, inputShape []int) (*Classifier, error) {
	c := &Classifier{cfg: cfg, client: client}

	scores, err := c.predict(ctx, entity.NewTensor(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", cfg.PredictURL(), err)
	}
	c.outputSize = len(scores)

	slog.Info("remote model reachable", "url", cfg.PredictURL(), "outputs", c.outputSize)
	return c, nil
}

// Name はログ用のバックエンド名を返します。
func (c *Classifier) Name() string {
	return "remote"
}

// OutputSize は起動時に確認した出力ベクトルの長さを返します。
func (c *Classifier) OutputSize() int {
	return c.outputSize
}

// Infer はテンソルを推論サーバーへ送信し、スコアを返します。
func (c *Classifier) Infer(ctx context.Context, input entity.Tensor) ([]float32, error) {
	return c.predict(ctx, input)
}

// Close はHTTPクライアントのアイドル接続を閉じます。
func (c *Classifier) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Classifier) predict(ctx context.Context, input entity.Tensor) ([]float32, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	// バッチ次元を除いた1インスタンス分をネストした配列に変換
	instance := nest(input.Data, input.Shape[1:])
	body, err := json.Marshal(predictRequest{Instances: []any{instance}})
	if err != nil {
		return nil, err
	}

	// リクエストオブジェクトを作成
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PredictURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// リクエストを実行
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, fmt.Errorf("model server http %d: %s", res.StatusCode, bytes.TrimSpace(snippet))
	}

	// JSONレスポンスをDTOにデコード
	var out predictResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model server: %s", out.Error)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("model server returned %d predictions for 1 instance", len(out.Predictions))
	}
	if c.outputSize > 0 && len(out.Predictions[0]) != c.outputSize {
		return nil, fmt.Errorf("model server returned %d scores, want %d", len(out.Predictions[0]), c.outputSize)
	}
	return out.Predictions[0], nil
}

// nest は行優先の平坦なデータを shape に従ったネスト配列に変換します。
func nest(data []float32, shape []int) any {
	if len(shape) <= 1 {
		return data
	}
	stride := len(data) / shape[0]
	out := make([]any, shape[0])
	for i := range out {
		out[i] = nest(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}
