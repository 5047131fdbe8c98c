package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/meme-arena/internal/advance"
)

type Config struct {
	Addr     string `env:"ARENA_ADDR" envDefault:":8080"`
	LogLevel string `env:"ARENA_LOG_LEVEL" envDefault:"info"`
	Dev      bool   `env:"ARENA_DEV" envDefault:"false"`

	JWTSecret string        `env:"ARENA_JWT_SECRET"`
	TokenTTL  time.Duration `env:"ARENA_TOKEN_TTL" envDefault:"24h"`

	SituationEndpoint    string        `env:"ARENA_SITUATION_ENDPOINT" envDefault:"http://localhost:8080/api/chat"`
	SituationTimeout     time.Duration `env:"ARENA_SITUATION_TIMEOUT" envDefault:"30s"`
	SituationParallelism int           `env:"ARENA_SITUATION_PARALLELISM" envDefault:"0"`

	RetryMax         int           `env:"ARENA_RETRY_MAX" envDefault:"3"`
	RetryInitial     time.Duration `env:"ARENA_RETRY_INITIAL" envDefault:"500ms"`
	RetryMaxInterval time.Duration `env:"ARENA_RETRY_MAX_INTERVAL" envDefault:"8s"`
	RetryMultiplier  float64       `env:"ARENA_RETRY_MULTIPLIER" envDefault:"2"`
	RetryJitter      float64       `env:"ARENA_RETRY_JITTER" envDefault:"0.2"`

	DeckMax int `env:"ARENA_DECK_MAX" envDefault:"10"`

	GroqAPIKey   string `env:"GROQ_API_KEY"`
	GroqModel    string `env:"GROQ_MODEL" envDefault:"llama-3.3-70b-versatile"`
	GroqEndpoint string `env:"GROQ_ENDPOINT" envDefault:"https://api.groq.com/openai/v1/chat/completions"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.RetryMax < 0 {
		return Config{}, fmt.Errorf("load config: ARENA_RETRY_MAX must be >= 0, got %d", cfg.RetryMax)
	}
	if cfg.DeckMax < 1 {
		return Config{}, fmt.Errorf("load config: ARENA_DECK_MAX must be >= 1, got %d", cfg.DeckMax)
	}
	return cfg, nil
}

func (c Config) RetryPolicy() advance.Policy {
	return advance.Policy{
		MaxRetries:          c.RetryMax,
		InitialInterval:     c.RetryInitial,
		MaxInterval:         c.RetryMaxInterval,
		Multiplier:          c.RetryMultiplier,
		RandomizationFactor: c.RetryJitter,
	}
}
