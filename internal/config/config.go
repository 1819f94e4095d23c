// Package config loads application configuration from a YAML file with
// environment-variable overrides. Secrets always come from the environment
// (optionally via a .env file); the YAML file carries everything else.
package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	SES      SESConfig      `yaml:"ses"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for locks and approval batch records.
// Redis is optional; without it the worker falls back to PG advisory locks
// and undo windows are tracked in Postgres timestamps only.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// OpenAIConfig holds settings for the enrichment/classification collaborator.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SESConfig holds AWS SES v2 mailer settings.
type SESConfig struct {
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	SenderEmail string `yaml:"sender_email"`
	SenderName  string `yaml:"sender_name"`
	MockMode    bool   `yaml:"mock_mode"`
}

// WorkflowConfig holds the policy knobs of the campaign workflow. The two
// scheduling switches are inverted so the zero value enables both checks.
type WorkflowConfig struct {
	DailyBudgetLimit    float64 `yaml:"daily_budget_limit"`
	DailySendLimit      int     `yaml:"daily_send_limit"`
	MaxSpamScore        float64 `yaml:"max_spam_score"`
	FollowupDays        int     `yaml:"followup_days"`
	MaxFollowups        int     `yaml:"max_followups"`
	SendOnWeekends      bool    `yaml:"send_on_weekends"`
	IgnoreBusinessHours bool    `yaml:"ignore_business_hours"`
	UndoWindowMinutes   int     `yaml:"undo_window_minutes"`
	UnsubscribeBaseURL  string  `yaml:"unsubscribe_base_url"`
	ClusterCount        int     `yaml:"cluster_count"`
	AutoApproveBelow    float64 `yaml:"auto_approve_below"`
}

// SkipWeekends reports whether sends must avoid weekends.
func (w WorkflowConfig) SkipWeekends() bool { return !w.SendOnWeekends }

// RespectBusinessHours reports whether sends are limited to business hours.
func (w WorkflowConfig) RespectBusinessHours() bool { return !w.IgnoreBusinessHours }

// WorkerConfig holds the periodic trigger settings.
type WorkerConfig struct {
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from a YAML file, then overrides secrets
// and connection strings from the environment. A .env file is loaded first
// if present. A missing YAML file is not an error; defaults are used and the
// environment supplies the rest.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if key := os.Getenv("AWS_SES_ACCESS_KEY"); key != "" {
		cfg.SES.AccessKey = key
	}
	if key := os.Getenv("AWS_SES_SECRET_KEY"); key != "" {
		cfg.SES.SecretKey = key
	}
	if sender := os.Getenv("SES_SENDER_EMAIL"); sender != "" {
		cfg.SES.SenderEmail = sender
	}
	if v := os.Getenv("DAILY_BUDGET_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Workflow.DailyBudgetLimit = f
		}
	}
	if v := os.Getenv("DAILY_SEND_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.DailySendLimit = n
		}
	}

	return cfg, nil
}

// Default returns a Config with all defaults applied, for tests and for
// running without a YAML file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4-turbo-preview"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-large"
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 60
	}
	if c.SES.Region == "" {
		c.SES.Region = "us-west-2"
	}
	if c.Workflow.DailyBudgetLimit == 0 {
		c.Workflow.DailyBudgetLimit = 100.0
	}
	if c.Workflow.DailySendLimit == 0 {
		c.Workflow.DailySendLimit = 500
	}
	if c.Workflow.MaxSpamScore == 0 {
		c.Workflow.MaxSpamScore = 5.0
	}
	if c.Workflow.FollowupDays == 0 {
		c.Workflow.FollowupDays = 7
	}
	if c.Workflow.MaxFollowups == 0 {
		c.Workflow.MaxFollowups = 3
	}
	if c.Workflow.UndoWindowMinutes == 0 {
		c.Workflow.UndoWindowMinutes = 5
	}
	if c.Workflow.UnsubscribeBaseURL == "" {
		c.Workflow.UnsubscribeBaseURL = "https://outreach.example.com/unsubscribe"
	}
	if c.Workflow.ClusterCount == 0 {
		c.Workflow.ClusterCount = 5
	}
	if c.Worker.TickIntervalSeconds == 0 {
		c.Worker.TickIntervalSeconds = 60
	}
}
