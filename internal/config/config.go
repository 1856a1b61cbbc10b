// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configurable values for the service.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone    string `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
	DatabaseURL string `env:"POSTGRES_URL"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	VerifyToken string `env:"VERIFY_TOKEN"`
	RecentLimit int    `env:"RECENT_LIMIT" envDefault:"5"`

	WhatsApp WhatsAppConfig `envPrefix:"WA_"`
	Gemini   GeminiConfig
	Sheets   SheetsConfig
	BigQuery BigQueryConfig `envPrefix:"BIGQUERY_"`
	Notion   NotionConfig   `envPrefix:"NOTION_"`
	Archive  ArchiveConfig
	Queue    QueueConfig `envPrefix:"QUEUE_"`

	location *time.Location
}

// WhatsAppConfig configures the Graph API client and webhook checks.
type WhatsAppConfig struct {
	Token         string `env:"TOKEN"`
	PhoneNumberID string `env:"PHONE_NUMBER_ID"`
	GraphBaseURL  string `env:"GRAPH_BASE_URL" envDefault:"https://graph.facebook.com"`
	APIVersion    string `env:"API_VERSION" envDefault:"v20.0"`
	AppSecret     string `env:"APP_SECRET"`
}

// GeminiConfig configures the language classifier.
type GeminiConfig struct {
	APIKey  string        `env:"GOOGLE_AI_API_KEY,unset"`
	Model   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	Timeout time.Duration `env:"GEMINI_TIMEOUT" envDefault:"20s"`
}

// SheetsConfig configures the spreadsheet mirror. Credentials may come from
// any of the three supported shapes, see sheets.ResolveCredentials.
type SheetsConfig struct {
	SpreadsheetID         string `env:"SPREADSHEET_ID"`
	Range                 string `env:"SHEETS_RANGE" envDefault:"Transações!A:I"`
	ServiceAccountJSON    string `env:"GOOGLE_SERVICE_ACCOUNT_JSON,unset"`
	ServiceAccountJSONB64 string `env:"GOOGLE_SERVICE_ACCOUNT_B64,unset"`
	ClientEmail           string `env:"GOOGLE_CLIENT_EMAIL"`
	PrivateKeyB64         string `env:"GOOGLE_PRIVATE_KEY_B64,unset"`
}

// Enabled reports whether a spreadsheet is configured.
func (s SheetsConfig) Enabled() bool {
	return s.SpreadsheetID != ""
}

// BigQueryConfig configures the analytics mirror.
type BigQueryConfig struct {
	ProjectID string `env:"PROJECT"`
	Dataset   string `env:"DATASET" envDefault:"finance"`
	Table     string `env:"TABLE" envDefault:"whatsapp_transactions"`
}

// Enabled reports whether the BigQuery mirror is configured.
func (b BigQueryConfig) Enabled() bool {
	return b.ProjectID != ""
}

// NotionConfig configures the Notion mirror.
type NotionConfig struct {
	Token      string `env:"TOKEN,unset"`
	DatabaseID string `env:"TRANSACTIONS_DB_ID"`
}

// Enabled reports whether the Notion mirror is configured.
func (n NotionConfig) Enabled() bool {
	return n.Token != "" && n.DatabaseID != ""
}

// ArchiveConfig configures raw webhook archiving to GCS.
type ArchiveConfig struct {
	Bucket string `env:"GCS_ARCHIVE_BUCKET"`
	Prefix string `env:"GCS_ARCHIVE_PREFIX" envDefault:"webhooks"`
}

// QueueConfig sizes the in-memory event queue.
type QueueConfig struct {
	Workers int `env:"WORKERS" envDefault:"5"`
	Buffer  int `env:"BUFFER" envDefault:"100"`
}

// Load reads environment variables and populates a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if cfg.Queue.Workers < 1 {
		return nil, fmt.Errorf("config: QUEUE_WORKERS must be at least 1, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.Buffer < 0 {
		return nil, fmt.Errorf("config: QUEUE_BUFFER must not be negative, got %d", cfg.Queue.Buffer)
	}
	if cfg.RecentLimit < 1 {
		cfg.RecentLimit = 5
	}

	return cfg, nil
}

// Location returns the timezone used for reference dates.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
