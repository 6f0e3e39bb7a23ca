package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solva-wallet/internal/validation"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel string
	AppURL   string
	Backend  BackendConfig
	Chain    ChainConfig
	Wallet   WalletConfig
	Search   SearchConfig
	Kafka    KafkaConfig
	Health   HealthConfig
}

// BackendConfig holds the payment backend API configuration
type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// ChainConfig holds configuration for the target chain and its contracts
type ChainConfig struct {
	RpcEndpoint     string
	ApiKey          string
	ChainID         int64
	TokenAddress    string
	PaymentContract string
	TokenDecimals   int32
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	ExplorerBaseURL string
}

// WalletConfig describes where the signing key comes from
type WalletConfig struct {
	PrivateKey   string
	KeystorePath string
	ConfirmSigns bool
}

// SearchConfig holds debounce settings for interactive lookups
type SearchConfig struct {
	Debounce             time.Duration
	AvailabilityDebounce time.Duration
	Limit                int
}

// KafkaConfig holds Kafka configuration. An empty BrokerAddress disables publishing.
type KafkaConfig struct {
	BrokerAddress string
	Topic         string
}

// HealthConfig holds the local status server configuration. An empty Addr disables it.
type HealthConfig struct {
	Addr          string
	CheckInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional, variables may be set externally
	_ = godotenv.Load()

	config := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		AppURL:   getEnv("APP_URL", "http://localhost:5173"),
		Backend: BackendConfig{
			BaseURL:   strings.TrimSuffix(getEnv("BACKEND_API_URL", "http://localhost:8000"), "/"),
			Timeout:   time.Duration(getEnvAsInt("BACKEND_TIMEOUT", 30)) * time.Second,
			RateLimit: getEnvAsFloat("BACKEND_RATE_LIMIT", 10),
		},
		Chain: ChainConfig{
			RpcEndpoint:     getEnv("POLYGON_RPC_ENDPOINT", "https://polygon-rpc.com"),
			ApiKey:          getEnv("POLYGON_API_KEY", ""),
			ChainID:         int64(getEnvAsInt("CHAIN_ID", 137)),
			TokenAddress:    getEnv("USDC_CONTRACT_ADDRESS", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
			PaymentContract: getEnv("PAYMENT_CONTRACT_ADDRESS", ""),
			TokenDecimals:   int32(getEnvAsInt("TOKEN_DECIMALS", 6)),
			ConfirmTimeout:  time.Duration(getEnvAsInt("CONFIRM_TIMEOUT", 120)) * time.Second,
			PollInterval:    time.Duration(getEnvAsInt("CONFIRM_POLL_MS", 2000)) * time.Millisecond,
			ExplorerBaseURL: getEnv("EXPLORER_BASE_URL", "https://polygonscan.com/tx/"),
		},
		Wallet: WalletConfig{
			PrivateKey:   getEnv("WALLET_PRIVATE_KEY", ""),
			KeystorePath: getEnv("WALLET_KEYSTORE", ""),
			ConfirmSigns: getEnvAsBool("WALLET_CONFIRM_SIGNATURES", true),
		},
		Search: SearchConfig{
			Debounce:             time.Duration(getEnvAsInt("SEARCH_DEBOUNCE_MS", 300)) * time.Millisecond,
			AvailabilityDebounce: time.Duration(getEnvAsInt("USERNAME_DEBOUNCE_MS", 500)) * time.Millisecond,
			Limit:                getEnvAsInt("SEARCH_LIMIT", 5),
		},
		Kafka: KafkaConfig{
			BrokerAddress: getEnv("KAFKA_BROKER_ADDRESS", ""),
			Topic:         getEnv("KAFKA_TOPIC", "wallet-payments"),
		},
		Health: HealthConfig{
			Addr:          getEnv("HEALTH_ADDR", ""),
			CheckInterval: time.Duration(getEnvAsInt("HEALTH_CHECK_INTERVAL", 10)) * time.Second,
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if err := validation.ValidateURL(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("BACKEND_API_URL: %w", err)
	}
	if err := validation.ValidateURL(c.AppURL); err != nil {
		return fmt.Errorf("APP_URL: %w", err)
	}
	if c.Chain.ExplorerBaseURL != "" {
		if err := validation.ValidateURL(c.Chain.ExplorerBaseURL); err != nil {
			return fmt.Errorf("EXPLORER_BASE_URL: %w", err)
		}
	}
	if c.Backend.RateLimit <= 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must be positive, got %v", c.Backend.RateLimit)
	}
	if c.Chain.TokenDecimals < 0 || c.Chain.TokenDecimals > 36 {
		return fmt.Errorf("TOKEN_DECIMALS out of range: %d", c.Chain.TokenDecimals)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive, got %d", c.Search.Limit)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
