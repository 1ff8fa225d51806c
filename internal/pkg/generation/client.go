package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/config"
)

// ArtifactRef 生成产物引用
// 后端不同模型的输出形态（裸 URL 字符串、{url: ...} 对象、二者的列表）
// 在本包内统一归一化，下游只看到这个结构
type ArtifactRef struct {
	URL string
}

// Client Replicate 生成后端客户端
// 提交 prediction 任务并轮询直到完成
type Client struct {
	apiToken     string
	baseURL      string
	pollInterval time.Duration
	maxWait      time.Duration
	httpClient   *http.Client
}

// NewClient 创建生成后端客户端
func NewClient(cfg *config.GenerationConfig) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("generation API token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 15 * time.Minute
	}

	return &Client{
		apiToken:     cfg.APIToken,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		pollInterval: pollInterval,
		maxWait:      maxWait,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// prediction API 响应
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Run 提交生成任务并阻塞等待结果
//
// Args:
//   - ctx: 上下文
//   - model: 模型标识（如 google/nano-banana、kwaivgi/kling-v2.5-turbo-pro）
//   - input: 模型输入参数
//
// Returns:
//   - ArtifactRef: 归一化后的产物引用
//   - error: *generation.Error（带 Kind 分类）或传输层错误
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (ArtifactRef, error) {
	pred, err := c.createPrediction(ctx, model, input)
	if err != nil {
		return ArtifactRef{}, err
	}

	log.Debug().Str("model", model).Str("prediction_id", pred.ID).Msg("生成任务已提交")

	deadline := time.Now().Add(c.maxWait)
	for {
		switch pred.Status {
		case "succeeded":
			ref, err := normalizeOutput(pred.Output)
			if err != nil {
				return ArtifactRef{}, err
			}
			log.Info().Str("model", model).Str("prediction_id", pred.ID).Msg("生成任务完成")
			return ref, nil
		case "failed", "canceled":
			return ArtifactRef{}, classifyMessage(pred.Error)
		}

		if time.Now().After(deadline) {
			// 超时按临时错误处理，调用方可以重试
			return ArtifactRef{}, &Error{Kind: KindTransient, Message: fmt.Sprintf("prediction %s timed out after %v", pred.ID, c.maxWait)}
		}

		select {
		case <-ctx.Done():
			return ArtifactRef{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		pred, err = c.getPrediction(ctx, pred.ID)
		if err != nil {
			return ArtifactRef{}, err
		}
	}
}

// createPrediction 提交 prediction 任务
// POST {base}/models/{model}/predictions
func (c *Client) createPrediction(ctx context.Context, model string, input map[string]any) (*prediction, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	apiURL := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 传输层超时也归为临时错误
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("model", model).
			Str("response_body", string(respBody)).
			Msg("生成任务提交失败")
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if pred.ID == "" {
		return nil, fmt.Errorf("prediction ID is empty in response")
	}
	return &pred, nil
}

// getPrediction 查询任务状态
func (c *Client) getPrediction(ctx context.Context, id string) (*prediction, error) {
	apiURL := fmt.Sprintf("%s/predictions/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &pred, nil
}

// normalizeOutput 归一化模型输出
// 支持三种形态：裸 URL 字符串、带 url 字段的对象、以及二者的列表（取第一个元素）
func normalizeOutput(raw json.RawMessage) (ArtifactRef, error) {
	if len(raw) == 0 {
		return ArtifactRef{}, fmt.Errorf("prediction output is empty")
	}

	// 字符串
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return ArtifactRef{}, fmt.Errorf("prediction output URL is empty")
		}
		return ArtifactRef{URL: s}, nil
	}

	// 对象 {url: ...}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return ArtifactRef{URL: obj.URL}, nil
	}

	// 列表（元素可以是字符串或对象）
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return normalizeOutput(list[0])
	}

	return ArtifactRef{}, fmt.Errorf("unrecognized prediction output: %s", string(raw))
}
