package config

import (
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/hair-advisor/internal/framing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Web.Port != 8080 {
		t.Errorf("expected default web port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Web.SessionTTL != 30*time.Minute {
		t.Errorf("expected default session TTL 30m, got %v", cfg.Web.SessionTTL)
	}
	if cfg.Capture.FrameWidth != 400 || cfg.Capture.FrameHeight != 300 {
		t.Errorf("expected default frame 400x300, got %vx%v", cfg.Capture.FrameWidth, cfg.Capture.FrameHeight)
	}
	if cfg.Capture.GuideWidth != 140 || cfg.Capture.GuideHeight != 170 {
		t.Errorf("expected default guide 140x170, got %vx%v", cfg.Capture.GuideWidth, cfg.Capture.GuideHeight)
	}
	if cfg.Capture.MinSizeRatio != 0.05 {
		t.Errorf("expected default min size ratio 0.05, got %v", cfg.Capture.MinSizeRatio)
	}
	if cfg.Capture.ReadyTimeout != 5*time.Second {
		t.Errorf("expected default ready timeout 5s, got %v", cfg.Capture.ReadyTimeout)
	}
	if cfg.Capture.JPEGQuality != 80 {
		t.Errorf("expected default JPEG quality 80, got %d", cfg.Capture.JPEGQuality)
	}
	if cfg.Capture.Revisit != "always" {
		t.Errorf("expected default revisit policy 'always', got '%s'", cfg.Capture.Revisit)
	}
	if cfg.Gateway.Retries != 2 {
		t.Errorf("expected default gateway retries 2, got %d", cfg.Gateway.Retries)
	}
	if cfg.Advisor.Provider != "gemini" {
		t.Errorf("expected default provider 'gemini', got '%s'", cfg.Advisor.Provider)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("expected default Gemini model 'gemini-2.5-flash', got '%s'", cfg.Gemini.Model)
	}
	if cfg.Advisor.TopK != 2 {
		t.Errorf("expected default top k 2, got %d", cfg.Advisor.TopK)
	}
	if cfg.Advisor.Retrieval != "embedding" {
		t.Errorf("expected default retrieval 'embedding', got '%s'", cfg.Advisor.Retrieval)
	}
	if cfg.Gemini.EmbeddingModel != "gemini-embedding-001" || cfg.OpenAI.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("unexpected default embedding models %q, %q", cfg.Gemini.EmbeddingModel, cfg.OpenAI.EmbeddingModel)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got '%s'", cfg.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CAPTURE_READY_TIMEOUT", "2500")
	t.Setenv("CAPTURE_MIN_SIZE_RATIO", "0.1")
	t.Setenv("CAPTURE_REVISIT", "never")
	t.Setenv("GATEWAY_URL", "http://gateway:5000")
	t.Setenv("GATEWAY_RETRIES", "0")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("OPENAI_TOKEN", "sk-test")
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("DATABASE_URL", "postgres://localhost/hair")

	cfg := Load()

	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("expected two allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Capture.ReadyTimeout != 2500*time.Millisecond {
		t.Errorf("expected ready timeout 2.5s, got %v", cfg.Capture.ReadyTimeout)
	}
	if cfg.Capture.MinSizeRatio != 0.1 {
		t.Errorf("expected min size ratio 0.1, got %v", cfg.Capture.MinSizeRatio)
	}
	if cfg.Capture.Revisit != "never" {
		t.Errorf("expected revisit 'never', got '%s'", cfg.Capture.Revisit)
	}
	if cfg.Gateway.URL != "http://gateway:5000" {
		t.Errorf("expected gateway URL override, got '%s'", cfg.Gateway.URL)
	}
	if cfg.Gateway.Retries != 0 {
		t.Errorf("expected gateway retries 0, got %d", cfg.Gateway.Retries)
	}
	if cfg.Web.SessionTTL != 10*time.Minute {
		t.Errorf("expected session TTL 10m, got %v", cfg.Web.SessionTTL)
	}
	if cfg.OpenAI.Token != "sk-test" || cfg.Gemini.APIKey != "gm-test" {
		t.Error("expected provider credentials from env")
	}
	if cfg.Database.URL != "postgres://localhost/hair" {
		t.Errorf("expected database URL, got '%s'", cfg.Database.URL)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"WEB_PORT", "not-a-number"},
		{"WEB_PORT", "-1"},
		{"CAPTURE_MIN_SIZE_RATIO", "abc"},
		{"CAPTURE_READY_TIMEOUT", "soon"},
		{"CAPTURE_READY_TIMEOUT", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := Load()
			if err := cfg.Validate(); err != nil {
				t.Errorf("expected fallback to defaults, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		geometry bool
	}{
		{name: "unknown revisit policy", mutate: func(c *Config) { c.Capture.Revisit = "sometimes" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Advisor.Provider = "ollama" }},
		{name: "unknown retrieval", mutate: func(c *Config) { c.Advisor.Retrieval = "random" }},
		{name: "jpeg quality above 100", mutate: func(c *Config) { c.Capture.JPEGQuality = 101 }},
		{name: "invalid gateway url", mutate: func(c *Config) { c.Gateway.URL = "gateway" }},
		{name: "guide larger than frame", mutate: func(c *Config) { c.Capture.GuideWidth = 500 }, geometry: true},
		{name: "min ratio above guide ratio", mutate: func(c *Config) { c.Capture.MinSizeRatio = 0.5 }, geometry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.geometry && !errors.Is(err, framing.ErrInvalidGeometry) {
				t.Errorf("expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestCaptureEvaluator(t *testing.T) {
	cfg := Load()
	e, err := cfg.Capture.Evaluator()
	if err != nil {
		t.Fatalf("Evaluator() error = %v", err)
	}
	want := framing.Rect{Left: 130, Top: 65, Right: 270, Bottom: 235}
	if e.GuideRect() != want {
		t.Errorf("GuideRect() = %+v, want %+v", e.GuideRect(), want)
	}
}

func TestGetModelPricing_KnownModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("gemini-2.5-flash")
	if pricing.Standard.Input != 0.30 {
		t.Errorf("expected standard input 0.30, got %v", pricing.Standard.Input)
	}
	if pricing.Batch.Output != 1.25 {
		t.Errorf("expected batch output 1.25, got %v", pricing.Batch.Output)
	}
}

func TestGetModelPricing_UnknownModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("unknown-model")
	if pricing.Standard.Input != 0 || pricing.Standard.Output != 0 {
		t.Errorf("expected zero pricing for unknown model, got %+v", pricing)
	}
}

func TestRequestPricingCost(t *testing.T) {
	p := RequestPricing{Input: 0.40, Output: 1.60}
	got := p.Cost(1_000_000, 500_000)
	if got != 1.20 {
		t.Errorf("Cost() = %v, want 1.20", got)
	}
}
