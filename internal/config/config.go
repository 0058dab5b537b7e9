package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Vertex    VertexConfig    `mapstructure:"vertex"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Lists     ListsConfig     `mapstructure:"lists"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the SQLite database location
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// GmailConfig holds mail source configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	Label        string `mapstructure:"label"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
}

// VertexConfig holds the generative-model endpoint configuration
type VertexConfig struct {
	ProjectID string        `mapstructure:"project_id"`
	Location  string        `mapstructure:"location"`
	Model     string        `mapstructure:"model"`
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// IngestConfig holds ingestion pipeline configuration
type IngestConfig struct {
	LedgerPath          string `mapstructure:"ledger_path"`
	LockPath            string `mapstructure:"lock_path"`
	RetryFailedPersists bool   `mapstructure:"retry_failed_persists"`
}

// SchedulerConfig holds the periodic sweep configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// ListsConfig holds the reference lists handed to the extraction prompt
type ListsConfig struct {
	Reporters []string `mapstructure:"reporters"`
	Employees []string `mapstructure:"employees"`
	Products  []string `mapstructure:"products"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.path", "weekly_reports.db")

	viper.SetDefault("gmail.label", "週報")
	viper.SetDefault("gmail.use_imap", false)
	viper.SetDefault("gmail.imap_host", "imap.gmail.com")
	viper.SetDefault("gmail.imap_port", 993)

	viper.SetDefault("vertex.location", "asia-northeast1")
	viper.SetDefault("vertex.model", "gemini-1.5-flash")
	viper.SetDefault("vertex.timeout", "90s")

	viper.SetDefault("ingest.ledger_path", "processed_ids.json")
	viper.SetDefault("ingest.lock_path", "ingest.lock")
	viper.SetDefault("ingest.retry_failed_persists", false)

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.interval_minutes", 60)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.path", "DATABASE_PATH")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	viper.BindEnv("gmail.label", "GMAIL_LABEL")
	viper.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	viper.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	viper.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	viper.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	viper.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// Vertex
	viper.BindEnv("vertex.project_id", "GOOGLE_CLOUD_PROJECT_ID")
	viper.BindEnv("vertex.location", "GOOGLE_CLOUD_LOCATION")
	viper.BindEnv("vertex.model", "VERTEX_MODEL")
	viper.BindEnv("vertex.endpoint", "VERTEX_ENDPOINT")
	viper.BindEnv("vertex.timeout", "VERTEX_TIMEOUT")

	// Ingest
	viper.BindEnv("ingest.ledger_path", "INGEST_LEDGER_PATH")
	viper.BindEnv("ingest.lock_path", "INGEST_LOCK_PATH")
	viper.BindEnv("ingest.retry_failed_persists", "INGEST_RETRY_FAILED_PERSISTS")

	// Scheduler
	viper.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Gmail.Label == "" {
		return fmt.Errorf("gmail label is required")
	}

	if !c.Gmail.UseIMAP {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Vertex.Endpoint == "" && (c.Vertex.ProjectID == "" || c.Vertex.Location == "" || c.Vertex.Model == "") {
		return fmt.Errorf("vertex project_id, location, and model are required when no endpoint override is set")
	}

	if c.Ingest.LedgerPath == "" {
		return fmt.Errorf("ingest ledger path is required")
	}

	if c.Scheduler.Enabled && c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
