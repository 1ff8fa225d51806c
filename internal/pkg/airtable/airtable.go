package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/config"
)

// 会话事件类型
const (
	EventJobStarted   = "job_started"
	EventJobProgress  = "job_progress"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

// SessionEvent 一条会话日志
type SessionEvent struct {
	JobID    string
	UserID   string
	Event    string
	Detail   string
	LoggedAt time.Time
}

// sendTimeout 单条事件的发送超时
const sendTimeout = 10 * time.Second

// Logger Airtable 会话日志旁路
// 纯旁路：任何失败只打告警，绝不影响流水线本身
type Logger struct {
	apiKey     string
	baseID     string
	table      string
	baseURL    string
	httpClient *http.Client
}

// NewLogger 创建会话日志客户端；配置不全时返回 nil（调用方按关闭处理）
func NewLogger(cfg *config.AirtableConfig) *Logger {
	if cfg == nil || cfg.APIKey == "" || cfg.BaseID == "" || cfg.Table == "" {
		return nil
	}
	return &Logger{
		apiKey:     cfg.APIKey,
		baseID:     cfg.BaseID,
		table:      cfg.Table,
		baseURL:    "https://api.airtable.com/v0",
		httpClient: &http.Client{Timeout: sendTimeout},
	}
}

// Log 记录一条会话事件，异步发送后立即返回
// 发送用独立的超时上下文：任务本身被取消也不影响收尾事件落地
func (l *Logger) Log(event SessionEvent) {
	if l == nil {
		return
	}
	if event.LoggedAt.IsZero() {
		event.LoggedAt = time.Now()
	}
	go l.send(event)
}

// send 同步发送一条事件
func (l *Logger) send(event SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"records": []map[string]any{
			{
				"fields": map[string]any{
					"JobID":    event.JobID,
					"UserID":   event.UserID,
					"Event":    event.Event,
					"Detail":   event.Detail,
					"LoggedAt": event.LoggedAt.Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("会话日志序列化失败")
		return
	}

	apiURL := fmt.Sprintf("%s/%s/%s", l.baseURL, l.baseID, url.PathEscape(l.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("会话日志请求创建失败")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("event", event.Event).Msg("会话日志发送失败")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(respBody)).
			Str("event", event.Event).
			Msg("会话日志被拒绝")
	}
}
