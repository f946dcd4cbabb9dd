// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 生成请求指标
	generationsTotal   *prometheus.CounterVec
	attemptDuration    *prometheus.HistogramVec
	attemptsPerRequest *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec

	// 密钥池指标
	keyRotationsTotal  *prometheus.CounterVec
	keysExhaustedTotal *prometheus.CounterVec

	// 限流指标
	rateLimitDenialsTotal *prometheus.CounterVec

	// 图像产出指标
	imagesProducedTotal *prometheus.CounterVec
	imageFetchesTotal   *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 生成请求指标
	c.generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of image generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Single upstream attempt duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	c.attemptsPerRequest = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempts_per_request",
			Help:      "Number of upstream attempts consumed per request",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 12},
		},
		[]string{"provider"},
	)

	c.retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried attempts",
		},
		[]string{"provider", "reason"},
	)

	// 密钥池指标
	c.keyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Total number of API key rotations",
		},
		[]string{"provider"},
	)

	c.keysExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_exhausted_total",
			Help:      "Times a provider key pool was fully exhausted",
		},
		[]string{"provider"},
	)

	// 限流指标
	c.rateLimitDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Total number of requests denied by the rate limiter",
		},
		[]string{"rule"},
	)

	// 图像产出指标
	c.imagesProducedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_produced_total",
			Help:      "Total number of images produced",
		},
		[]string{"provider", "form"}, // form: url, local
	)

	c.imageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_fetches_total",
			Help:      "Total number of remote image downloads",
		},
		[]string{"status"}, // status: success, failure
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎨 生成请求指标记录
// =============================================================================

// RecordGeneration 记录一次生成请求的最终结果
func (c *Collector) RecordGeneration(provider, model, status string, attempts int) {
	c.generationsTotal.WithLabelValues(provider, model, status).Inc()
	c.attemptsPerRequest.WithLabelValues(provider).Observe(float64(attempts))
}

// RecordAttempt 记录一次上游尝试
func (c *Collector) RecordAttempt(provider string, duration time.Duration) {
	c.attemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRetry 记录一次重试及其原因
func (c *Collector) RecordRetry(provider, reason string) {
	c.retriesTotal.WithLabelValues(provider, reason).Inc()
}

// =============================================================================
// 🔑 密钥池指标记录
// =============================================================================

// RecordKeyRotation 记录一次密钥轮换
func (c *Collector) RecordKeyRotation(provider string) {
	c.keyRotationsTotal.WithLabelValues(provider).Inc()
}

// RecordKeysExhausted 记录密钥池耗尽
func (c *Collector) RecordKeysExhausted(provider string) {
	c.keysExhaustedTotal.WithLabelValues(provider).Inc()
}

// =============================================================================
// 🚦 限流指标记录
// =============================================================================

// RecordRateLimitDenial 记录一次限流拒绝
func (c *Collector) RecordRateLimitDenial(rule string) {
	c.rateLimitDenialsTotal.WithLabelValues(rule).Inc()
}

// =============================================================================
// 🖼️ 图像产出指标记录
// =============================================================================

// RecordImageProduced 记录一张产出图像
func (c *Collector) RecordImageProduced(provider, form string) {
	c.imagesProducedTotal.WithLabelValues(provider, form).Inc()
}

// RecordImageFetch 记录一次远端图像下载
func (c *Collector) RecordImageFetch(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.imageFetchesTotal.WithLabelValues(status).Inc()
}
