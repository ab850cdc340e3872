package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/hair-advisor/internal/framing"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Web      WebConfig
	Capture  CaptureConfig
	Detector DetectorConfig
	Gateway  GatewayConfig
	Database DatabaseConfig
	Advisor  AdvisorConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Log      LogConfig
	Prices   PricesConfig
}

type WebConfig struct {
	Host           string        `default:"0.0.0.0"`
	Port           int           `default:"8080" validate:"min=1,max=65535"`
	AllowedOrigins []string      // empty allows any origin
	SessionTTL     time.Duration `default:"30m" validate:"min=1s"`
}

type CaptureConfig struct {
	FrameWidth   float64       `default:"400" validate:"gt=0"`
	FrameHeight  float64       `default:"300" validate:"gt=0"`
	GuideWidth   float64       `default:"140" validate:"gt=0"`
	GuideHeight  float64       `default:"170" validate:"gt=0"`
	MinSizeRatio float64       `default:"0.05" validate:"gte=0,lte=1"`
	ReadyTimeout time.Duration `default:"5s" validate:"min=100ms"`
	JPEGQuality  int           `default:"80" validate:"min=1,max=100"`
	Revisit      string        `default:"always" validate:"oneof=always unless_skipped never"`
}

// Evaluator builds the framing evaluator for the configured geometry.
func (c *CaptureConfig) Evaluator() (*framing.Evaluator, error) {
	return framing.NewEvaluator(
		framing.Size{Width: c.FrameWidth, Height: c.FrameHeight},
		framing.Size{Width: c.GuideWidth, Height: c.GuideHeight},
		c.MinSizeRatio,
	)
}

type DetectorConfig struct {
	URL         string  `default:"http://localhost:8000" validate:"required,url"`
	MinScore    float64 `default:"0.5" validate:"gte=0,lte=1"`
	LoadRetries int     `default:"3" validate:"gte=0"`
}

type GatewayConfig struct {
	URL     string        `default:"http://localhost:5000" validate:"required,url"` // recommendation service base URL
	Retries int           `default:"2" validate:"gte=0"`
	Timeout time.Duration `default:"60s"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, persistence is disabled when empty
	MaxOpenConns int    `default:"25"`
	MaxIdleConns int    `default:"5"`
}

type AdvisorConfig struct {
	Host         string `default:"0.0.0.0"`
	Port         int    `default:"5000" validate:"min=1,max=65535"`
	Provider     string `default:"gemini" validate:"oneof=gemini openai"`
	KnowledgeDir string // directory of *.txt knowledge files replacing the built-in base
	ChatDir      string // directory of *.txt files replacing the built-in chat knowledge
	TopK         int    `default:"2" validate:"min=1"`
	Retrieval    string `default:"embedding" validate:"oneof=embedding lexical"`
}

type OpenAIConfig struct {
	Token          string
	Model          string `default:"gpt-4.1-mini"`
	EmbeddingModel string `default:"text-embedding-3-small"`
}

type GeminiConfig struct {
	APIKey         string
	Model          string `default:"gemini-2.5-flash"`
	EmbeddingModel string `default:"gemini-embedding-001"`
}

type LogConfig struct {
	Level      string `default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	File       string // rotated log file, stderr only when empty
	MaxSizeMB  int    `default:"100"`
	MaxBackups int    `default:"3"`
	MaxAgeDays int    `default:"28"`
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Cost returns the USD cost of a request with the given token counts.
func (p RequestPricing) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1_000_000
}

// envString returns the environment variable or the default value if it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("5s") or as milliseconds ("5000").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

// envList splits a comma separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	var d Config
	if err := defaults.Set(&d); err != nil {
		panic("invalid config defaults: " + err.Error())
	}

	return &Config{
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			SessionTTL:     envDuration("SESSION_TTL", d.Web.SessionTTL),
		},
		Capture: CaptureConfig{
			FrameWidth:   envFloat("CAPTURE_FRAME_WIDTH", d.Capture.FrameWidth),
			FrameHeight:  envFloat("CAPTURE_FRAME_HEIGHT", d.Capture.FrameHeight),
			GuideWidth:   envFloat("CAPTURE_GUIDE_WIDTH", d.Capture.GuideWidth),
			GuideHeight:  envFloat("CAPTURE_GUIDE_HEIGHT", d.Capture.GuideHeight),
			MinSizeRatio: envFloat("CAPTURE_MIN_SIZE_RATIO", d.Capture.MinSizeRatio),
			ReadyTimeout: envDuration("CAPTURE_READY_TIMEOUT", d.Capture.ReadyTimeout),
			JPEGQuality:  envInt("CAPTURE_JPEG_QUALITY", d.Capture.JPEGQuality),
			Revisit:      envString("CAPTURE_REVISIT", d.Capture.Revisit),
		},
		Detector: DetectorConfig{
			URL:         envString("DETECTOR_URL", d.Detector.URL),
			MinScore:    envFloat("DETECTOR_MIN_SCORE", d.Detector.MinScore),
			LoadRetries: envInt("DETECTOR_LOAD_RETRIES", d.Detector.LoadRetries),
		},
		Gateway: GatewayConfig{
			URL:     envString("GATEWAY_URL", d.Gateway.URL),
			Retries: envInt("GATEWAY_RETRIES", d.Gateway.Retries),
			Timeout: envDuration("GATEWAY_TIMEOUT", d.Gateway.Timeout),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Advisor: AdvisorConfig{
			Host:         envString("ADVISOR_HOST", d.Advisor.Host),
			Port:         envInt("ADVISOR_PORT", d.Advisor.Port),
			Provider:     envString("ADVISOR_PROVIDER", d.Advisor.Provider),
			KnowledgeDir: os.Getenv("ADVISOR_KNOWLEDGE_DIR"),
			ChatDir:      os.Getenv("ADVISOR_CHAT_KNOWLEDGE_DIR"),
			TopK:         envInt("ADVISOR_TOP_K", d.Advisor.TopK),
			Retrieval:    envString("ADVISOR_RETRIEVAL", d.Advisor.Retrieval),
		},
		OpenAI: OpenAIConfig{
			Token:          os.Getenv("OPENAI_TOKEN"),
			Model:          envString("OPENAI_MODEL", d.OpenAI.Model),
			EmbeddingModel: envString("OPENAI_EMBEDDING_MODEL", d.OpenAI.EmbeddingModel),
		},
		Gemini: GeminiConfig{
			APIKey:         os.Getenv("GEMINI_API_KEY"),
			Model:          envString("GEMINI_MODEL", d.Gemini.Model),
			EmbeddingModel: envString("GEMINI_EMBEDDING_MODEL", d.Gemini.EmbeddingModel),
		},
		Log: LogConfig{
			Level:      envString("LOG_LEVEL", d.Log.Level),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", d.Log.MaxSizeMB),
			MaxBackups: envInt("LOG_MAX_BACKUPS", d.Log.MaxBackups),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", d.Log.MaxAgeDays),
		},
		Prices: prices,
	}
}

var validate = validator.New()

// Validate checks field constraints and the capture geometry.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Capture.Evaluator(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
