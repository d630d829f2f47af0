package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gregtusar/gswap-trader/pkg/secrets"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Trading   TradingConfig   `mapstructure:"trading"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	GSwap     GSwapConfig     `mapstructure:"gswap"`
	Coinbase  CoinbaseConfig  `mapstructure:"coinbase"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	GCP       GCPConfig       `mapstructure:"gcp"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=0,max=65535"`
}

type TradingConfig struct {
	Enabled         bool            `mapstructure:"enabled"`
	SimulationMode  bool            `mapstructure:"simulation_mode"`
	MinTradeSize    decimal.Decimal `mapstructure:"min_trade_size"`
	MaxTradeSize    decimal.Decimal `mapstructure:"max_trade_size"`
	FeeRate         decimal.Decimal `mapstructure:"fee_rate"`
	CycleInterval   time.Duration   `mapstructure:"cycle_interval" validate:"gt=0"`
	ErrorBackoff    time.Duration   `mapstructure:"error_backoff" validate:"gt=0"`
	BalanceCacheTTL time.Duration   `mapstructure:"balance_cache_ttl" validate:"gt=0"`
	InitialBase     decimal.Decimal `mapstructure:"initial_base"`
	InitialQuote    decimal.Decimal `mapstructure:"initial_quote"`
	BaseToken       string          `mapstructure:"base_token" validate:"required"`
	QuoteToken      string          `mapstructure:"quote_token" validate:"required"`
	Retry           RetryConfig     `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gt=0"`
}

type PriceFeedConfig struct {
	Source    string          `mapstructure:"source" validate:"oneof=coingecko coinbase"`
	Timeout   time.Duration   `mapstructure:"timeout" validate:"gt=0"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
}

type CoinGeckoConfig struct {
	BaseURL           string `mapstructure:"base_url" validate:"omitempty,url"`
	CoinID            string `mapstructure:"coin_id" validate:"required"`
	VsCurrency        string `mapstructure:"vs_currency" validate:"required"`
	APIKey            string `mapstructure:"api_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"gt=0"`
}

type GSwapConfig struct {
	GatewayURL        string        `mapstructure:"gateway_url" validate:"required,url"`
	BundlerURL        string        `mapstructure:"bundler_url" validate:"required,url"`
	EventsURL         string        `mapstructure:"events_url" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	EventTimeout      time.Duration `mapstructure:"event_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
}

type CoinbaseConfig struct {
	BaseURL       string `mapstructure:"base_url" validate:"omitempty,url"`
	ProductID     string `mapstructure:"product_id"`
	APIKeyName    string `mapstructure:"api_key_name"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

type WalletConfig struct {
	Address    string `mapstructure:"address"`
	PrivateKey string `mapstructure:"private_key"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string, logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("Failed to read .env file")
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gswap-trader")
	}

	v.SetEnvPrefix("GSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.DecodeHookFuncType(decimalHook),
	))); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		if err := loadSecretsFromGCP(context.Background(), &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return validateAmounts(config.Trading)
}

func validateAmounts(t TradingConfig) error {
	var msgs []string
	if !t.MinTradeSize.IsPositive() {
		msgs = append(msgs, "trading.min_trade_size must be > 0")
	}
	if t.MaxTradeSize.LessThan(t.MinTradeSize) {
		msgs = append(msgs, "trading.max_trade_size must be >= min_trade_size")
	}
	if t.FeeRate.IsNegative() || t.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		msgs = append(msgs, "trading.fee_rate must be in [0, 1)")
	}
	if t.InitialBase.IsNegative() || t.InitialQuote.IsNegative() {
		msgs = append(msgs, "trading initial balances must be >= 0")
	}
	if len(msgs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// decimalHook decodes amounts from their literal text so "0.003" stays exact.
func decimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		return decimal.NewFromUint64(v), nil
	default:
		return data, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)

	v.SetDefault("trading.enabled", true)
	v.SetDefault("trading.simulation_mode", false)
	v.SetDefault("trading.min_trade_size", "1")
	v.SetDefault("trading.max_trade_size", "10")
	v.SetDefault("trading.fee_rate", "0.003")
	v.SetDefault("trading.cycle_interval", 90*time.Second)
	v.SetDefault("trading.error_backoff", 30*time.Second)
	v.SetDefault("trading.balance_cache_ttl", 30*time.Second)
	v.SetDefault("trading.initial_base", "5.03")
	v.SetDefault("trading.initial_quote", "1.62")
	v.SetDefault("trading.base_token", "GALA|Unit|none|none")
	v.SetDefault("trading.quote_token", "GUSDC|Unit|none|none")
	v.SetDefault("trading.retry.max_attempts", 3)
	v.SetDefault("trading.retry.base_delay", time.Second)

	v.SetDefault("pricefeed.source", "coingecko")
	v.SetDefault("pricefeed.timeout", 10*time.Second)
	v.SetDefault("pricefeed.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricefeed.coingecko.coin_id", "gala")
	v.SetDefault("pricefeed.coingecko.vs_currency", "usd")
	v.SetDefault("pricefeed.coingecko.api_key", "")
	v.SetDefault("pricefeed.coingecko.requests_per_minute", 30)

	v.SetDefault("gswap.gateway_url", "https://dex-backend-prod1.defi.gala.com")
	v.SetDefault("gswap.bundler_url", "https://bundle-backend-prod1.defi.gala.com")
	v.SetDefault("gswap.events_url", "wss://bundle-backend-prod1.defi.gala.com")
	v.SetDefault("gswap.timeout", 30*time.Second)
	v.SetDefault("gswap.event_timeout", 60*time.Second)
	v.SetDefault("gswap.requests_per_second", 5.0)

	v.SetDefault("coinbase.base_url", "https://api.coinbase.com")
	v.SetDefault("coinbase.product_id", "GALA-USD")
	v.SetDefault("coinbase.api_key_name", "")
	v.SetDefault("coinbase.private_key_pem", "")

	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.private_key", "")

	v.SetDefault("journal.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.wallet_address", secretNames.WalletAddress)
	v.SetDefault("gcp.secret_names.private_key", secretNames.PrivateKey)
	v.SetDefault("gcp.secret_names.coinbase_key_name", secretNames.CoinbaseKeyName)
	v.SetDefault("gcp.secret_names.coinbase_private_key", secretNames.CoinbasePrivateKey)
}

func overrideFromEnv(config *Config) {
	if addr := os.Getenv("WALLET_ADDRESS"); addr != "" {
		config.Wallet.Address = addr
	}
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		config.Wallet.PrivateKey = key
	}
	if sim, err := strconv.ParseBool(os.Getenv("SIMULATION_MODE")); err == nil {
		config.Trading.SimulationMode = sim
	}

	if name := os.Getenv("COINBASE_API_KEY_NAME"); name != "" {
		config.Coinbase.APIKeyName = name
	}
	if key := os.Getenv("COINBASE_PRIVATE_KEY"); key != "" {
		config.Coinbase.PrivateKeyPEM = key
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	applySecrets(ctx, config, secretManager)
	return nil
}

type secretResolver interface {
	Resolve(ctx context.Context, names secrets.SecretNames, fallback secrets.Credentials) secrets.Credentials
}

// applySecrets only fills values that file and environment left empty.
func applySecrets(ctx context.Context, config *Config, resolver secretResolver) {
	names := config.GCP.SecretNames
	if config.Wallet.Address != "" {
		names.WalletAddress = ""
	}
	if config.Wallet.PrivateKey != "" {
		names.PrivateKey = ""
	}
	if config.Coinbase.APIKeyName != "" {
		names.CoinbaseKeyName = ""
	}
	if config.Coinbase.PrivateKeyPEM != "" {
		names.CoinbasePrivateKey = ""
	}

	creds := resolver.Resolve(ctx, names, secrets.Credentials{
		WalletAddress:      config.Wallet.Address,
		PrivateKey:         config.Wallet.PrivateKey,
		CoinbaseKeyName:    config.Coinbase.APIKeyName,
		CoinbasePrivateKey: config.Coinbase.PrivateKeyPEM,
	})
	config.Wallet.Address = creds.WalletAddress
	config.Wallet.PrivateKey = creds.PrivateKey
	config.Coinbase.APIKeyName = creds.CoinbaseKeyName
	config.Coinbase.PrivateKeyPEM = creds.CoinbasePrivateKey
}
