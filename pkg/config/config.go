package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every externally supplied setting. It is constructed once
// in main and passed down explicitly; no package reads the environment on
// its own.
type Config struct {
	// LLM backend (OpenAI-compatible chat completions endpoint)
	APIKey      string
	APIURL      string
	Model       string
	Temperature float64

	// SQL Server connectivity
	SQLServer   string
	SQLUser     string
	SQLPassword string

	// Local state
	DataDir string

	// HTTP server
	Addr string

	LogLevel string
}

// Load reads configuration from the environment, honoring a .env file in
// the working directory when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments use process env.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:      os.Getenv("API_KEY"),
		APIURL:      strings.TrimSpace(os.Getenv("API_URL")),
		Model:       os.Getenv("LLM_MODEL"),
		SQLServer:   os.Getenv("SQL_SERVER"),
		SQLUser:     os.Getenv("SQL_USER"),
		SQLPassword: os.Getenv("SQL_PASSWORD"),
		DataDir:     os.Getenv("DATA_DIR"),
		Addr:        os.Getenv("ADDR"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills optional fields with their defaults.
func (c *Config) SetDefaults() {
	if c.SQLServer == "" {
		c.SQLServer = "localhost"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Addr == "" {
		c.Addr = ":8888"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
}

// Validate reports whether the configuration is complete enough to serve
// agent sessions. The LLM backend is required: a session turn fails
// immediately with a configuration error when it is absent.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.APIURL == "" {
		return fmt.Errorf("API_KEY and API_URL must be set for the LLM backend")
	}
	if c.Model == "" {
		return fmt.Errorf("LLM_MODEL must be set")
	}
	if c.SQLServer == "" {
		return fmt.Errorf("SQL_SERVER must be set for database connectivity")
	}
	return nil
}

// LLMConfigured reports whether the LLM backend settings are present.
func (c *Config) LLMConfigured() bool {
	return c.APIKey != "" && c.APIURL != "" && c.Model != ""
}
