package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFetchTimeout  = 60 * time.Second
	defaultFetchParallel = 4

	// 单张图像下载上限, 防御异常响应
	maxImageBytes = 64 << 20
)

// Fetcher 并发把远端图像 URL 下载进本地存储.
// 单张失败不影响其余图像, 失败的引用保持 URL 形态返回.
type Fetcher struct {
	client   *http.Client
	store    ImageStore
	logger   *zap.Logger
	timeout  time.Duration
	parallel int
}

// NewFetcher 创建下载器. client 为 nil 时使用默认超时的 http.Client.
func NewFetcher(client *http.Client, store ImageStore, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:   client,
		store:    store,
		logger:   logger.With(zap.String("component", "fetcher")),
		timeout:  defaultFetchTimeout,
		parallel: defaultFetchParallel,
	}
}

// WithTimeout 设置整批下载的总超时.
func (f *Fetcher) WithTimeout(d time.Duration) *Fetcher {
	if d > 0 {
		f.timeout = d
	}
	return f
}

// WithParallelism 设置并发下载数.
func (f *Fetcher) WithParallelism(n int) *Fetcher {
	if n > 0 {
		f.parallel = n
	}
	return f
}

// Localize 把 URL 形态的图像引用批量落盘. 已有本地路径的引用原样
// 保留, 下载失败的引用保持 URL 形态并记录告警.
func (f *Fetcher) Localize(ctx context.Context, refs []ImageRef) []ImageRef {
	if len(refs) == 0 {
		return refs
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out := make([]ImageRef, len(refs))
	copy(out, refs)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)

	for i := range out {
		if out[i].LocalPath != "" || out[i].URL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			path, err := f.fetchOne(ctx, out[i].URL)
			if err != nil {
				f.logger.Warn("图像下载失败",
					zap.String("url", out[i].URL),
					zap.Error(err))
				return nil
			}
			out[i].LocalPath = path
			return nil
		})
	}

	// 工作协程从不返回错误, Wait 只等待收尾
	_ = g.Wait()
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty response body")
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}

	return f.store.SaveBytes(ctx, data, mimeType)
}
