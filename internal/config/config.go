package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel         string            `env:"LOG_LEVEL" envDefault:"info"`
	EndpointURL      string            `env:"CHAT_ENDPOINT_URL" envDefault:"http://localhost:8080"`
	StreamPath       string            `env:"CHAT_STREAM_PATH" envDefault:"/chat/stream"`
	APIKey           string            `env:"CHAT_API_KEY"`
	ExtraHeaders     map[string]string `env:"CHAT_EXTRA_HEADERS"`
	ModelID          string            `env:"CHAT_MODEL_ID" envDefault:"anthropic.claude-3-5-sonnet-20240620-v1:0"`
	SystemPrompt     string            `env:"CHAT_SYSTEM_PROMPT" envDefault:"You are a helpful assistant."`
	SessionID        string            `env:"CHAT_SESSION_ID"`
	TurnTimeout      time.Duration     `env:"CHAT_TURN_TIMEOUT" envDefault:"0s"`
	ReadBufferSize   int               `env:"STREAM_READ_BUFFER" envDefault:"32768"`
	DatabaseURL      string            `env:"DATABASE_URL"`
	NATSStoreDir     string            `env:"NATS_STORE_DIR" envDefault:"/tmp/chatstream-nats"`
	WriterBufferSize int               `env:"WRITER_BUFFER_SIZE" envDefault:"10000"`
	WriterBatchSize  int               `env:"WRITER_BATCH_SIZE" envDefault:"100"`
	WriterFlushMs    int               `env:"WRITER_FLUSH_MS" envDefault:"100"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PersistenceEnabled reports whether transcripts are written to Postgres.
func (c *Config) PersistenceEnabled() bool {
	return c.DatabaseURL != ""
}
