// Package config provides configuration types and loading for sheetclaw.
package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Gateway, Confirmations, Store, Audit.
type Config struct {
	Paths         PathsConfig         `json:"paths"`
	Model         ModelConfig         `json:"model"`
	Provider      ProviderConfig      `json:"provider"`
	Gateway       GatewayConfig       `json:"gateway"`
	Confirmations ConfirmationsConfig `json:"confirmations"`
	Store         StoreConfig         `json:"store"`
	Audit         AuditConfig         `json:"audit"`
	LogLevel      string              `json:"logLevel" envconfig:"LOG_LEVEL"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings. Empty Workbook and
// Database resolve inside DataDir.
type PathsConfig struct {
	DataDir  string `json:"dataDir" envconfig:"DATA_DIR"`
	Workbook string `json:"workbook" envconfig:"WORKBOOK"`
	Database string `json:"database" envconfig:"DATABASE"`
}

// WorkbookPath returns the resolved xlsx location.
func (p PathsConfig) WorkbookPath() string {
	if p.Workbook != "" {
		return p.Workbook
	}
	return filepath.Join(p.DataDir, "example.xlsx")
}

// DatabasePath returns the resolved sqlite location.
func (p PathsConfig) DatabasePath() string {
	if p.Database != "" {
		return p.Database
	}
	return filepath.Join(p.DataDir, "chat.db")
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and turn-loop settings.
type ModelConfig struct {
	Name               string  `json:"name" envconfig:"MODEL"`
	MaxTokens          int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature        float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxSteps           int     `json:"maxSteps" envconfig:"MAX_STEPS"`
	HistoryTokenBudget int     `json:"historyTokenBudget" envconfig:"HISTORY_TOKEN_BUDGET"`
}

// ---------------------------------------------------------------------------
// Provider – LLM endpoint
// ---------------------------------------------------------------------------

// Provider kinds.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// ProviderConfig selects the chat completions endpoint.
type ProviderConfig struct {
	Kind       string `json:"kind" envconfig:"KIND"`
	APIKey     string `json:"apiKey" envconfig:"API_KEY"`
	APIBase    string `json:"apiBase" envconfig:"API_BASE"`
	APIVersion string `json:"apiVersion" envconfig:"API_VERSION"`
	Deployment string `json:"deployment" envconfig:"DEPLOYMENT"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP API
// ---------------------------------------------------------------------------

// GatewayConfig configures the HTTP server.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
}

// ---------------------------------------------------------------------------
// Confirmations – dangerous action ledger
// ---------------------------------------------------------------------------

// ConfirmationsConfig tunes the confirmation ledger.
type ConfirmationsConfig struct {
	TTLSeconds int `json:"ttlSeconds" envconfig:"TTL_SECONDS"`
}

// TTL returns the confirmation lifetime.
func (c ConfirmationsConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Store – thread persistence
// ---------------------------------------------------------------------------

// StoreConfig selects the sqlite driver: "sqlite" (pure Go) or "sqlite3" (cgo).
type StoreConfig struct {
	Driver string `json:"driver" envconfig:"DRIVER"`
}

// ---------------------------------------------------------------------------
// Audit – lifecycle events
// ---------------------------------------------------------------------------

// AuditConfig configures where confirmation and turn events go. Events are
// always logged; Kafka is optional.
type AuditConfig struct {
	KafkaEnabled bool   `json:"kafkaEnabled" envconfig:"KAFKA_ENABLED"`
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.sheetclaw/data",
		},
		Model: ModelConfig{
			Name:        "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0.2,
			MaxSteps:    5,
		},
		Provider: ProviderConfig{
			Kind:       ProviderOpenAI,
			APIVersion: "2024-08-01-preview",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18890,
		},
		Confirmations: ConfirmationsConfig{
			TTLSeconds: 300,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Audit: AuditConfig{
			KafkaTopic: "sheetclaw.audit",
		},
		LogLevel: "info",
	}
}
