package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	LLMDefault    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	MaxTokens      int
	Temperature    float32
	RequestTimeout time.Duration
	MaxUploadBytes int64

	DatabaseURL      string
	AnalysisCacheTTL time.Duration
	ReportRetention  time.Duration

	PromptDir          string
	CORSAllowedOrigins []string
	SentryDSN          string

	TelegramBotToken string
	WebhookURL       string
}

// Load reads an optional .env and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}

	var errs []error
	cfg := &Config{
		Port: getEnv("PORT", "8000"),

		LLMDefault:    strings.ToLower(getEnv("LLM_DEFAULT", "gpt")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		MaxTokens:      getInt("LLM_MAX_TOKENS", 8000, &errs),
		Temperature:    getFloat32("LLM_TEMPERATURE", 0.8, &errs),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 180*time.Second, &errs),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 20<<20, &errs)),

		DatabaseURL:      resolveDSN(),
		AnalysisCacheTTL: getDuration("ANALYSIS_CACHE_TTL", 0, &errs),
		ReportRetention:  getDuration("REPORT_RETENTION", 0, &errs),

		PromptDir:          getEnv("PROMPT_DIR", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		SentryDSN:          getEnv("SENTRY_DSN", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks what every binary needs: at least one model key and a
// default engine that has one.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" {
		return errors.New("set OPENAI_API_KEY or GEMINI_API_KEY")
	}
	switch c.LLMDefault {
	case "gpt", "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("LLM_DEFAULT=gpt but OPENAI_API_KEY is empty")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("LLM_DEFAULT=gemini but GEMINI_API_KEY is empty")
		}
	default:
		return fmt.Errorf("unknown LLM_DEFAULT %q; use gpt or gemini", c.LLMDefault)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.Temperature)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// MustEnv is for values a single binary cannot start without.
func MustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int, errs *[]error) int {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getFloat32(k string, def float32, errs *[]error) float32 {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return float32(f)
}

// getDuration accepts Go durations ("90s", "2h") or a bare number of seconds.
func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveDSN prefers DATABASE_URL and otherwise builds a Postgres DSN from
// POSTGRES_* / PG* vars. Without POSTGRES_PASSWORD persistence stays off.
func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "bodyscan"), pass),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "bodyscan"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
