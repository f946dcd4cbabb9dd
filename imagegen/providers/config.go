// Package providers contains shared configuration and helpers for the
// vendor adapter implementations.
package providers

import (
	"time"
)

// Config is the per-vendor adapter configuration. Zero values fall
// back to vendor defaults inside each adapter.
type Config struct {
	// APIBase overrides the vendor's default endpoint base (反代支持)
	APIBase string `json:"api_base,omitempty" yaml:"api_base,omitempty"`

	// Model is the default model when the request does not name one
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// DefaultSize overrides the request resolution when set
	DefaultSize string `json:"default_size,omitempty" yaml:"default_size,omitempty"`

	// Watermark toggles vendor-side watermarking where supported
	Watermark *bool `json:"watermark,omitempty" yaml:"watermark,omitempty"`

	// OptimizePromptMode enables vendor prompt rewriting (doubao:
	// "standard" or "fast")
	OptimizePromptMode string `json:"optimize_prompt_mode,omitempty" yaml:"optimize_prompt_mode,omitempty"`

	// SequentialImageGeneration enables multi-image output (doubao:
	// "auto")
	SequentialImageGeneration string `json:"sequential_image_generation,omitempty" yaml:"sequential_image_generation,omitempty"`

	// SequentialMaxImages caps multi-image output, valid range 2-15
	SequentialMaxImages int `json:"sequential_max_images,omitempty" yaml:"sequential_max_images,omitempty"`

	// HTTPReferer and XTitle are attribution headers some
	// OpenAI-compatible gateways (OpenRouter) want
	HTTPReferer string `json:"http_referer,omitempty" yaml:"http_referer,omitempty"`
	XTitle      string `json:"x_title,omitempty" yaml:"x_title,omitempty"`

	// MaxTokens bounds chat-completions shaped requests
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// Timeout bounds a single vendor call, enforced by the caller
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Doubao sequential generation bounds.
const (
	SequentialImagesMin = 2
	SequentialImagesMax = 15
)
