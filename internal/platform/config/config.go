package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const llmAPIKeyMock = "mock"

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// LLM provider
	LLMAPIKey              string        `env:"LLM_API_KEY,required"`
	LLMBaseURL             string        `env:"LLM_BASE_URL"`
	LLMTriageModel         string        `env:"LLM_TRIAGE_MODEL" envDefault:"gpt-4o-mini"`
	LLMPrimaryModel        string        `env:"LLM_PRIMARY_MODEL" envDefault:"gpt-4o"`
	LLMEscalationModel     string        `env:"LLM_ESCALATION_MODEL" envDefault:"gpt-4.1"`
	LLMConfidenceThreshold float64       `env:"LLM_CONFIDENCE_THRESHOLD" envDefault:"0.8"`
	LLMLongContextChars    int           `env:"LLM_LONG_CONTEXT_CHARS" envDefault:"12000"`
	LLMCallTimeout         time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"60s"`
	LLMMaxTokens           int           `env:"LLM_MAX_TOKENS" envDefault:"2048"`
	LLMCircuitThreshold    int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout      time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`
	LLMDailyTokenBudget    int64         `env:"LLM_DAILY_TOKEN_BUDGET" envDefault:"0"`
	RateLimitRPS           float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	PromptVersion          string        `env:"PROMPT_VERSION" envDefault:"v3"`

	// Retry harness
	RetryMaxRetries    int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	RetryInitialDelay  time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	RetryBackoffFactor float64       `env:"RETRY_BACKOFF_FACTOR" envDefault:"2"`

	// Preprocessing
	BotCommandPrefixes  []string `env:"BOT_COMMAND_PREFIXES" envSeparator:"," envDefault:"!,/,?"`
	KnownBotAuthors     []string `env:"KNOWN_BOT_AUTHORS" envSeparator:","`
	AliasExtra          string   `env:"ALIAS_EXTRA"`
	SplitThreshold      int      `env:"SPLIT_THRESHOLD" envDefault:"1500"`
	SplitMinChunk       int      `env:"SPLIT_MIN_CHUNK" envDefault:"200"`
	TickerContextWindow int      `env:"TICKER_CONTEXT_WINDOW" envDefault:"4"`

	// Live worker
	WorkerBatchSize        int           `env:"WORKER_BATCH_SIZE" envDefault:"20"`
	WorkerPollInterval     time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"10s"`
	ParserChunkConcurrency int           `env:"PARSER_CHUNK_CONCURRENCY" envDefault:"4"`
	TriageCacheTTL         time.Duration `env:"TRIAGE_CACHE_TTL" envDefault:"6h"`
	TriageCacheSize        int           `env:"TRIAGE_CACHE_SIZE" envDefault:"10000"`

	// Batch pipeline
	BatchBuildLimit       int           `env:"BATCH_BUILD_LIMIT" envDefault:"5000"`
	BatchPollInterval     time.Duration `env:"BATCH_POLL_INTERVAL" envDefault:"30s"`
	BatchCompletionWindow string        `env:"BATCH_COMPLETION_WINDOW" envDefault:"24h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

// UseMockLLM reports whether the deterministic local client was requested.
func (c *Config) UseMockLLM() bool {
	return strings.EqualFold(strings.TrimSpace(c.LLMAPIKey), llmAPIKeyMock)
}

// Aliases parses ALIAS_EXTRA ("apple=AAPL,micro strategy=MSTR") into a name->ticker map.
func (c *Config) Aliases() map[string]string {
	out := make(map[string]string)

	for _, pair := range strings.Split(c.AliasExtra, ",") {
		name, ticker, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		ticker = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ticker), "$")))

		if name == "" || ticker == "" {
			continue
		}

		out[name] = ticker
	}

	return out
}

func (c *Config) normalize() {
	if c.LLMConfidenceThreshold <= 0 || c.LLMConfidenceThreshold > 1 {
		c.LLMConfidenceThreshold = defaultConfidenceThreshold
	}

	if c.SplitMinChunk >= c.SplitThreshold {
		c.SplitMinChunk = c.SplitThreshold / 2
	}

	if c.ParserChunkConcurrency <= 0 {
		c.ParserChunkConcurrency = 1
	}

	if v, ok := os.LookupEnv("LLM_MODEL"); ok && !hasEnv("LLM_PRIMARY_MODEL") {
		if v = strings.TrimSpace(v); v != "" {
			c.LLMPrimaryModel = v
		}
	}

	prefixes := c.BotCommandPrefixes[:0]

	for _, p := range c.BotCommandPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	c.BotCommandPrefixes = prefixes
}

const defaultConfidenceThreshold = 0.8

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
