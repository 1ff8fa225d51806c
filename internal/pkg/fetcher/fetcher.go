package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Fetcher 媒体文件下载器
// 下载失败返回空字符串而不是错误：产物 URL 仍然有效，
// 本地副本只是尽力而为，由调用方决定是否降级
type Fetcher struct {
	httpClient *http.Client
}

// New 创建下载器
func New() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

const chunkSize = 8 * 1024

// Download 下载 url 到 destPath，流式写入
// 返回本地路径；任何失败（非 2xx、IO 错误）都返回 ""
func (f *Fetcher) Download(ctx context.Context, url, destPath string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("创建下载请求失败")
		return ""
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("下载请求失败")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status_code", resp.StatusCode).Str("url", url).Msg("下载返回非 2xx")
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		log.Warn().Err(err).Str("dest", destPath).Msg("创建下载目录失败")
		return ""
	}

	file, err := os.Create(destPath)
	if err != nil {
		log.Warn().Err(err).Str("dest", destPath).Msg("创建下载文件失败")
		return ""
	}
	defer file.Close()

	total := resp.ContentLength
	var written int64
	var lastLogged int64 // 上次打印进度时的百分比档位

	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				log.Warn().Err(writeErr).Str("dest", destPath).Msg("写入下载文件失败")
				os.Remove(destPath)
				return ""
			}
			written += int64(n)

			// Content-Length 可用时每 ~20% 打一条进度
			if total > 0 {
				pct := written * 100 / total
				if pct >= lastLogged+20 {
					lastLogged = pct / 20 * 20
					log.Debug().
						Str("dest", filepath.Base(destPath)).
						Int64("percent", lastLogged).
						Int64("bytes", written).
						Msg("下载进度")
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.Warn().Err(readErr).Str("url", url).Msg("读取下载流失败")
			os.Remove(destPath)
			return ""
		}
	}

	log.Info().Str("dest", destPath).Int64("bytes", written).Msg("下载完成")
	return destPath
}
