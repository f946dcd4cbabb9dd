package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/types"
)

const (
	defaultMaxAttemptsPerKey = 3
	defaultPerRetryTimeout   = 180 * time.Second
)

// GenerateOptions 控制单次生成的重试与预算.
type GenerateOptions struct {
	// GroupID 非空时经过限流器准入检查
	GroupID string

	// MaxAttemptsPerKey 单个 Key 上的最大尝试次数, 0 取默认值 3
	MaxAttemptsPerKey int

	// PerRetryTimeout 单次上游尝试的超时, 0 取默认值 180s
	PerRetryTimeout time.Duration

	// MaxTotalTime 整个请求的时间预算, 0 表示不限制
	MaxTotalTime time.Duration
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.MaxAttemptsPerKey <= 0 {
		o.MaxAttemptsPerKey = defaultMaxAttemptsPerKey
	}
	if o.PerRetryTimeout <= 0 {
		o.PerRetryTimeout = defaultPerRetryTimeout
	}
	return o
}

// ClientConfig 聚合 Client 的可选依赖.
type ClientConfig struct {
	HTTPClient *http.Client
	Backoff    BackoffPolicy
	Limiter    *RateLimiter
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Client 是多厂商图像生成的编排器: 准入、取 Key、构造请求、发送、
// 分类错误, 再决定重试、轮换 Key 还是放弃.
type Client struct {
	resolver Resolver
	keys     *KeyManager
	http     *http.Client
	backoff  BackoffPolicy
	limiter  *RateLimiter
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewClient 创建编排器.
func NewClient(resolver Resolver, keys *KeyManager, cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// 超时由每次尝试的 context 控制
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		resolver: resolver,
		keys:     keys,
		http:     httpClient,
		backoff:  cfg.Backoff,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		logger:   logger.With(zap.String("component", "imagegen_client")),
	}
}

// Generate 执行一次图像生成请求, 内部吸收重试与 Key 轮换.
// 返回的错误总是 *types.Error, 已按可重试性和来源分类.
func (c *Client) Generate(ctx context.Context, cfg *RequestConfig, opts GenerateOptions) (*Result, error) {
	if cfg == nil || cfg.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt must not be empty")
	}
	if cfg.Provider == "" {
		return nil, types.NewError(types.ErrConfiguration, "provider must be specified")
	}
	opts = opts.withDefaults()

	adapter := c.resolver.Resolve(cfg.Provider)
	provider := adapter.Name()
	log := c.logger.With(zap.String("provider", provider))

	if opts.GroupID != "" && c.limiter != nil {
		allowed, message := c.limiter.Admit(ctx, opts.GroupID)
		if !allowed {
			if c.metrics != nil {
				c.metrics.RecordRateLimitDenial(opts.GroupID)
			}
			return nil, types.NewError(types.ErrRateLimited, message).WithProvider(provider)
		}
	}

	if c.keys == nil || !c.keys.HasProvider(provider) {
		return nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("no API keys configured for provider %s", provider)).
			WithProvider(provider)
	}

	apiKey, ok := c.keys.Acquire(ctx, provider)
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordKeysExhausted(provider)
		}
		return nil, types.NewError(types.ErrKeysExhausted,
			"all API keys for this provider have exhausted their daily quota").
			WithProvider(provider)
	}

	start := time.Now()
	poolSize := c.keys.Status(provider).TotalKeys

	var lastErr *types.Error
	attempts := 0
	attemptsOnKey := 0
	retryIndex := 0
	rotations := 0

	fail := func(err *types.Error) (*Result, error) {
		if c.metrics != nil {
			c.metrics.RecordGeneration(provider, cfg.Model, string(err.Code), attempts)
		}
		return nil, err
	}

	for {
		attempts++
		attemptsOnKey++

		result, attemptErr := c.attempt(ctx, adapter, cfg, apiKey, attempts > 1, opts.PerRetryTimeout)
		if attemptErr == nil {
			if result.Filtered {
				log.Warn("生成内容被厂商安全策略拦截", zap.String("finish_reason", result.FinishReason))
				return fail(types.NewError(types.ErrContentFiltered,
					"the provider filtered the generated content, adjust the prompt and retry").
					WithProvider(provider))
			}
			if result.Empty() {
				attemptErr = types.NewError(types.ErrEmptyResponse,
					"provider returned neither images nor text").
					WithProvider(provider).WithRetryable(true)
			} else {
				if c.metrics != nil {
					c.metrics.RecordGeneration(provider, cfg.Model, "success", attempts)
					for _, img := range result.Images {
						form := "url"
						if img.LocalPath != "" {
							form = "local"
						}
						c.metrics.RecordImageProduced(provider, form)
					}
				}
				log.Info("生成成功",
					zap.Int("attempts", attempts),
					zap.Int("images", len(result.Images)),
					zap.Duration("elapsed", time.Since(start)))
				return result, nil
			}
		}

		classified := Classify(attemptErr, provider)
		lastErr = classified
		log.Warn("尝试失败",
			zap.Int("attempt", attempts),
			zap.String("code", string(classified.Code)),
			zap.Bool("retryable", classified.Retryable),
			zap.Error(classified))

		// 取消是终态, 不触发轮换或重试
		if classified.Code == types.ErrCancelled {
			return fail(classified)
		}

		if !classified.Retryable {
			// Key 相关的致命错误在多 Key 池上轮换后换 Key 重来,
			// 每个 Key 最多被轮换到一次
			if isKeyRelated(classified) && poolSize > 1 && rotations < poolSize-1 {
				if next, ok := c.keys.Rotate(ctx, provider); ok && next != apiKey {
					rotations++
					if c.metrics != nil {
						c.metrics.RecordKeyRotation(provider)
					}
					log.Info("Key 不可用, 轮换到下一个", zap.String("code", string(classified.Code)))
					apiKey = next
					attemptsOnKey = 0
					continue
				}
			}
			return fail(classified)
		}

		if c.metrics != nil {
			c.metrics.RecordRetry(provider, string(classified.Code))
		}

		// 当前 Key 尝试次数用满: 能换 Key 就换, 否则耗尽
		if attemptsOnKey >= opts.MaxAttemptsPerKey {
			rotated := false
			if poolSize > 1 && rotations < poolSize-1 {
				if next, ok := c.keys.Rotate(ctx, provider); ok && next != apiKey {
					rotations++
					if c.metrics != nil {
						c.metrics.RecordKeyRotation(provider)
					}
					apiKey = next
					attemptsOnKey = 0
					rotated = true
				}
			}
			if !rotated {
				return fail(types.NewError(types.ErrRetriesExhausted,
					fmt.Sprintf("exhausted after %d attempts", attempts)).
					WithProvider(provider).WithCause(lastErr))
			}
		}

		// retryIndex 从 0 起算: 首次重试等 InitialDelay, 之后逐次翻倍
		delay := c.backoff.Delay(retryIndex)
		if opts.MaxTotalTime > 0 && time.Since(start)+delay >= opts.MaxTotalTime {
			return fail(types.NewError(types.ErrBudgetExceeded,
				fmt.Sprintf("time budget exceeded after %d attempts, raise the budget or simplify the request", attempts)).
				WithProvider(provider).WithCause(lastErr))
		}
		if err := c.backoff.Sleep(ctx, retryIndex); err != nil {
			return fail(types.NewError(types.ErrCancelled, "request cancelled while waiting to retry").
				WithProvider(provider).WithCause(err))
		}
		retryIndex++
	}
}

// attempt 执行单次上游调用: 构造请求、发送、解析.
func (c *Client) attempt(ctx context.Context, adapter Adapter, cfg *RequestConfig, apiKey string, isRetry bool, timeout time.Duration) (*Result, error) {
	// 重试时的格式切换由 SmartRetry 控制
	retryFlag := isRetry && cfg.SmartRetry

	req, err := adapter.BuildRequest(ctx, cfg, BuildContext{APIKey: apiKey, IsRetry: retryFlag})
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build HTTP request").
			WithProvider(adapter.Name()).WithCause(err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	sendStart := time.Now()
	resp, err := c.http.Do(httpReq)
	if c.metrics != nil {
		c.metrics.RecordAttempt(adapter.Name(), time.Since(sendStart))
	}
	if err != nil {
		return nil, c.classifyTransport(ctx, attemptCtx, err, adapter.Name(), timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classifyTransport(ctx, attemptCtx, err, adapter.Name(), timeout)
	}

	return adapter.ParseResponse(attemptCtx, body, resp.StatusCode, ParseContext{IsRetry: retryFlag})
}

// classifyTransport 区分外层取消、单次超时与普通网络错误.
func (c *Client) classifyTransport(ctx, attemptCtx context.Context, err error, provider string, timeout time.Duration) *types.Error {
	switch {
	case ctx.Err() != nil:
		return types.NewError(types.ErrCancelled,
			"request cancelled by caller, raise the caller-side timeout if this was a deadline").
			WithProvider(provider).WithCause(ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return types.NewError(types.ErrUpstreamTimeout,
			fmt.Sprintf("upstream attempt timed out after %s", timeout)).
			WithProvider(provider).WithRetryable(true).WithCause(err)
	default:
		return types.NewError(types.ErrNetwork, "network error while calling provider").
			WithProvider(provider).WithRetryable(true).WithCause(err)
	}
}
