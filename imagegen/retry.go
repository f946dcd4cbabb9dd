package imagegen

import (
	"context"
	"time"
)

// BackoffPolicy 定义重试退避策略
// 延迟从 InitialDelay 开始每次翻倍, 封顶于 MaxDelay
type BackoffPolicy struct {
	InitialDelay time.Duration // 首次重试前的延迟
	MaxDelay     time.Duration // 延迟上限
	Multiplier   float64       // 倍增因子
}

// DefaultBackoffPolicy 返回默认退避策略: 2s/4s/8s, 封顶 10s
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay 计算第 attempt 次失败后的退避延迟 (attempt 从 0 开始)
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = 2 * time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 10 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(initial)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(max) {
			return max
		}
	}
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// Sleep 等待退避延迟, 同时监听 context 取消
func (p BackoffPolicy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
