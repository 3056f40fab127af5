// Package config provides configuration management functionality.
//
// Configuration degrades instead of crashing: a missing or malformed
// secrets blob leaves the Firebase section unset and the process keeps
// running. Components that need the store discover the gap when they
// try to connect.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// EnvServiceAccount is the environment variable holding the JSON-encoded
// Firebase service account bundle.
const EnvServiceAccount = "FIREBASE_SERVICE_ACCOUNT_JSON"

// Default values for the optional service account URI fields.
const (
	defaultAuthURI             = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURI            = "https://oauth2.googleapis.com/token"
	defaultAuthProviderCertURL = "https://www.googleapis.com/oauth2/v1/certs"
	defaultClientCertURL       = "https://www.googleapis.com/robot/v1/metadata/x509/..."
)

// FirebaseConfig holds the service account credentials for the document
// store. Immutable after load; a restart is required to pick up rotated
// secrets. Never log this in full outside trusted diagnostic contexts.
type FirebaseConfig struct {
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// DataConfig holds market data source parameters
type DataConfig struct {
	Exchanges             []string
	DataFreshnessMinutes  int
	HistoricalDays        int
	MaxSymbolsPerExchange int
}

// ModelConfig holds model acceptance thresholds for synthesized models
type ModelConfig struct {
	MaxModelComplexity    int
	MinBacktestPeriodDays int
	RequiredSharpeRatio   float64
	MaxDrawdownPercent    float64
	GeneticPopulationSize int
}

// MirrorConfig holds local model document mirror settings
type MirrorConfig struct {
	DataDir string
}

// ArchiveConfig holds Cloudflare R2 archive export settings.
// The export is disabled unless all credential fields are set.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int
}

// Enabled reports whether R2 archive credentials are fully configured
func (a ArchiveConfig) Enabled() bool {
	return a.AccountID != "" && a.AccessKeyID != "" && a.SecretAccessKey != "" && a.Bucket != ""
}

// Config holds application configuration.
// Firebase is nil when the secrets blob is absent or unusable.
type Config struct {
	Firebase *FirebaseConfig
	Data     DataConfig
	Model    ModelConfig
	Mirror   MirrorConfig
	Archive  ArchiveConfig
	LogLevel string
}

// Load reads configuration from environment variables.
// It never fails: problems with the secrets blob are logged and leave
// Firebase unset, and every other section is built from static defaults.
func Load(log zerolog.Logger) *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Data: DataConfig{
			DataFreshnessMinutes:  5,
			HistoricalDays:        365,
			MaxSymbolsPerExchange: 50,
		},
		Model: ModelConfig{
			MaxModelComplexity:    10,
			MinBacktestPeriodDays: 30,
			RequiredSharpeRatio:   1.0,
			MaxDrawdownPercent:    20.0,
			GeneticPopulationSize: 50,
		},
		Mirror: MirrorConfig{
			DataDir: getEnv("AMSE_DATA_DIR", "./data"),
		},
		Archive: ArchiveConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			RetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 30),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.Firebase = loadFirebaseConfig(log)

	return cfg
}

// loadFirebaseConfig reads and validates the service account bundle.
// Returns nil on any problem; the error is logged, never propagated.
func loadFirebaseConfig(log zerolog.Logger) *FirebaseConfig {
	raw := os.Getenv(EnvServiceAccount)
	if raw == "" {
		log.Warn().Str("env", EnvServiceAccount).Msg("Firebase service account not found in environment")
		return nil
	}

	var fb FirebaseConfig
	if err := json.Unmarshal([]byte(raw), &fb); err != nil {
		log.Error().Err(err).Msg("Failed to parse Firebase config")
		return nil
	}

	if err := fb.validate(); err != nil {
		log.Error().Err(err).Msg("Failed to load Firebase config")
		return nil
	}

	// Private keys arrive with literal "\n" escape sequences; the signer
	// needs real newlines.
	fb.PrivateKey = strings.ReplaceAll(fb.PrivateKey, `\n`, "\n")

	fb.applyDefaults()

	return &fb
}

// validate checks the required service account fields
func (f *FirebaseConfig) validate() error {
	required := map[string]string{
		"project_id":     f.ProjectID,
		"private_key_id": f.PrivateKeyID,
		"private_key":    f.PrivateKey,
		"client_email":   f.ClientEmail,
		"client_id":      f.ClientID,
	}

	for field, value := range required {
		if value == "" {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	return nil
}

// applyDefaults fills the optional URI fields
func (f *FirebaseConfig) applyDefaults() {
	if f.AuthURI == "" {
		f.AuthURI = defaultAuthURI
	}
	if f.TokenURI == "" {
		f.TokenURI = defaultTokenURI
	}
	if f.AuthProviderX509CertURL == "" {
		f.AuthProviderX509CertURL = defaultAuthProviderCertURL
	}
	if f.ClientX509CertURL == "" {
		f.ClientX509CertURL = defaultClientCertURL
	}
}

// Snapshot returns a plain mapping view of the firebase, data and model
// sections for diagnostics.
//
// When revealSecrets is true the Firebase section is expanded in full,
// including key material. Callers must restrict that output to trusted
// diagnostic contexts; it is never safe for shared logs. With
// revealSecrets false the secret fields are redacted.
func (c *Config) Snapshot(revealSecrets bool, log zerolog.Logger) map[string]interface{} {
	var firebase map[string]interface{}
	if c.Firebase != nil {
		firebase = map[string]interface{}{
			"project_id":                  c.Firebase.ProjectID,
			"private_key_id":              c.Firebase.PrivateKeyID,
			"private_key":                 c.Firebase.PrivateKey,
			"client_email":                c.Firebase.ClientEmail,
			"client_id":                   c.Firebase.ClientID,
			"auth_uri":                    c.Firebase.AuthURI,
			"token_uri":                   c.Firebase.TokenURI,
			"auth_provider_x509_cert_url": c.Firebase.AuthProviderX509CertURL,
			"client_x509_cert_url":        c.Firebase.ClientX509CertURL,
		}
		if revealSecrets {
			log.Warn().Msg("Config snapshot includes unredacted secret material")
		} else {
			firebase["private_key"] = "[REDACTED]"
			firebase["private_key_id"] = "[REDACTED]"
		}
	}

	return map[string]interface{}{
		"firebase": firebase,
		"data": map[string]interface{}{
			"exchanges":                c.Data.Exchanges,
			"data_freshness_minutes":   c.Data.DataFreshnessMinutes,
			"historical_days":          c.Data.HistoricalDays,
			"max_symbols_per_exchange": c.Data.MaxSymbolsPerExchange,
		},
		"model": map[string]interface{}{
			"max_model_complexity":     c.Model.MaxModelComplexity,
			"min_backtest_period_days": c.Model.MinBacktestPeriodDays,
			"required_sharpe_ratio":    c.Model.RequiredSharpeRatio,
			"max_drawdown_percent":     c.Model.MaxDrawdownPercent,
			"genetic_population_size":  c.Model.GeneticPopulationSize,
		},
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
