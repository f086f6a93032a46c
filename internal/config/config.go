package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STACKSEND"

const (
	AckValidateFirst = "validate-first"
	AckFirst         = "ack-first"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen            string
	PGDSN             string
	LogLevel          string
	AckMode           string
	STXDialect        string
	WebhookToken      string
	MaxBodyBytes      int64
	ProcessingTimeout time.Duration
	ShutdownTimeout   time.Duration
	ExplorerURL       string
	CORSOrigins       []string

	TelegramToken       string
	TelegramAPIEndpoint string
	BotEnabled          bool
	NotifyConcurrency   int
	NotifyRate          float64
	NotifyTimeout       time.Duration

	ContractMainnet string
	ContractTestnet string

	NATSURL     string
	NATSSubject string

	OTLPEndpoint string
	OTLPInsecure bool

	DBConnectRetries int
	DBConnectBackoff time.Duration
	AutoMigrate      bool
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := newViper()

	v.SetDefault("listen", ":3001")
	v.SetDefault("log-level", "info")
	v.SetDefault("ack-mode", AckValidateFirst)
	v.SetDefault("stx-dialect", "decoded-args")
	v.SetDefault("max-body-bytes", int64(10<<20))
	v.SetDefault("processing-timeout", 60*time.Second)
	v.SetDefault("shutdown-timeout", 30*time.Second)
	v.SetDefault("explorer-url", "https://explorer.hiro.so")
	v.SetDefault("cors-origins", []string{"*"})
	v.SetDefault("telegram-api-endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("bot-enabled", true)
	v.SetDefault("notify-concurrency", 4)
	v.SetDefault("notify-rate", 25.0)
	v.SetDefault("notify-timeout", 10*time.Second)
	v.SetDefault("nats-subject", "stacksend.transfers.recorded")
	v.SetDefault("otlp-insecure", true)
	v.SetDefault("db-connect-retries", 5)
	v.SetDefault("db-connect-backoff", 500*time.Millisecond)

	// Variable names used by earlier deployments.
	_ = v.BindEnv("pg-dsn", envPrefix+"_PG_DSN", "DATABASE_URL")
	_ = v.BindEnv("telegram-token", envPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("contract-mainnet", envPrefix+"_CONTRACT_MAINNET", "MULTISEND_CONTRACT_MAINNET")
	_ = v.BindEnv("contract-testnet", envPrefix+"_CONTRACT_TESTNET", "MULTISEND_CONTRACT_TESTNET")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:              v.GetString("listen"),
		PGDSN:               v.GetString("pg-dsn"),
		LogLevel:            v.GetString("log-level"),
		AckMode:             strings.ToLower(v.GetString("ack-mode")),
		STXDialect:          v.GetString("stx-dialect"),
		WebhookToken:        v.GetString("webhook-token"),
		MaxBodyBytes:        v.GetInt64("max-body-bytes"),
		ProcessingTimeout:   v.GetDuration("processing-timeout"),
		ShutdownTimeout:     v.GetDuration("shutdown-timeout"),
		ExplorerURL:         v.GetString("explorer-url"),
		CORSOrigins:         getStringSlice(v, "cors-origins"),
		TelegramToken:       v.GetString("telegram-token"),
		TelegramAPIEndpoint: v.GetString("telegram-api-endpoint"),
		BotEnabled:          v.GetBool("bot-enabled"),
		NotifyConcurrency:   v.GetInt("notify-concurrency"),
		NotifyRate:          v.GetFloat64("notify-rate"),
		NotifyTimeout:       v.GetDuration("notify-timeout"),
		ContractMainnet:     v.GetString("contract-mainnet"),
		ContractTestnet:     v.GetString("contract-testnet"),
		NATSURL:             v.GetString("nats-url"),
		NATSSubject:         v.GetString("nats-subject"),
		OTLPEndpoint:        v.GetString("otlp-endpoint"),
		OTLPInsecure:        v.GetBool("otlp-insecure"),
		DBConnectRetries:    v.GetInt("db-connect-retries"),
		DBConnectBackoff:    v.GetDuration("db-connect-backoff"),
		AutoMigrate:         v.GetBool("auto-migrate"),
	}

	if err := cfg.Validate(); err != nil {
		return ServeConfig{}, err
	}
	return cfg, nil
}

// Validate checks values that have no usable fallback.
func (c ServeConfig) Validate() error {
	if c.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	switch c.AckMode {
	case AckValidateFirst, AckFirst:
	default:
		return fmt.Errorf("unsupported ack mode: %s", c.AckMode)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.NotifyConcurrency <= 0 {
		return fmt.Errorf("notify concurrency must be positive")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
