package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Admin        AdminConfig
	Telegram     TelegramConfig
	Webhook      WebhookConfig
	Limits       LimitsConfig
	Subscription SubscriptionConfig
	Referral     ReferralConfig
	Promo        PromoConfig
	LLM          LLMConfig
	Log          LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI            string
	Database       string
	TimeoutSeconds int
}

// Timeout is the per-operation deadline applied to connect and ping.
func (c MongoDBConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds Redis-specific configuration. An empty Addr disables
// the cooldown limiter.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	CooldownSeconds int
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// AdminConfig holds the operator credentials. PasswordHash is a bcrypt hash.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// TelegramConfig holds bot transport configuration
type TelegramConfig struct {
	Token    string
	Username string
	Enabled  bool
}

// WebhookConfig holds payment webhook configuration. LiteStartapp and
// ProStartapp are the provider product codes mapped to each plan.
type WebhookConfig struct {
	APIKey          string
	LiteStartapp    string
	ProStartapp     string
	NotifyOnPayment bool
}

// LimitsConfig holds monthly request limits per tier
type LimitsConfig struct {
	FreeText  int64
	FreePhoto int64
	LiteText  int64
	LitePhoto int64
}

// SubscriptionConfig holds plan pricing and purchase terms
type SubscriptionConfig struct {
	Days        int
	LitePrice   string
	ProPrice    string
	LiteAmount  float64
	ProAmount   float64
	Currency    string
	CheckoutURL string
}

// ReferralConfig holds referral reward settings
type ReferralConfig struct {
	RewardBatch  int64
	RewardMonths int
}

// PromoConfig holds redeemable promo codes as "CODE:days,CODE2:days"
type PromoConfig struct {
	Codes string
}

// LLMConfig holds the answer-generation client configuration
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Mock           bool
	TimeoutSeconds int
	MaxTurns       int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load loads configuration from environment variables and config files
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	v.SetDefault("MongoDB.Database", "schoolbot")
	v.SetDefault("MongoDB.TimeoutSeconds", 10)
	v.SetDefault("Redis.Addr", "")
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Redis.CooldownSeconds", 5)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	v.SetDefault("Admin.Username", "admin")
	v.SetDefault("Admin.PasswordHash", "")
	v.SetDefault("Telegram.Token", "")
	v.SetDefault("Telegram.Username", "")
	v.SetDefault("Telegram.Enabled", true)
	v.SetDefault("Webhook.APIKey", "")
	v.SetDefault("Webhook.LiteStartapp", "")
	v.SetDefault("Webhook.ProStartapp", "")
	v.SetDefault("Webhook.NotifyOnPayment", true)
	v.SetDefault("Limits.FreeText", 3)
	v.SetDefault("Limits.FreePhoto", 2)
	v.SetDefault("Limits.LiteText", 300)
	v.SetDefault("Limits.LitePhoto", 120)
	v.SetDefault("Subscription.Days", 30)
	v.SetDefault("Subscription.LitePrice", "199.99 ₽")
	v.SetDefault("Subscription.ProPrice", "299.99 ₽")
	v.SetDefault("Subscription.LiteAmount", 199.99)
	v.SetDefault("Subscription.ProAmount", 299.99)
	v.SetDefault("Subscription.Currency", "RUB")
	v.SetDefault("Subscription.CheckoutURL", "")
	v.SetDefault("Referral.RewardBatch", 6)
	v.SetDefault("Referral.RewardMonths", 1)
	v.SetDefault("Promo.Codes", "")
	v.SetDefault("LLM.BaseURL", "https://api.openai.com/v1")
	v.SetDefault("LLM.APIKey", "")
	v.SetDefault("LLM.Model", "gpt-4o-mini")
	v.SetDefault("LLM.Mock", true)
	v.SetDefault("LLM.TimeoutSeconds", 120)
	v.SetDefault("LLM.MaxTurns", 12)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "json")
	v.SetDefault("Log.Output", "stdout")
}

// Validate rejects configuration the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MongoDB.URI) == "" {
		return errors.New("config: MongoDB.URI is required")
	}
	if c.Limits.FreeText < 0 || c.Limits.FreePhoto < 0 || c.Limits.LiteText <= 0 || c.Limits.LitePhoto <= 0 {
		return fmt.Errorf("config: invalid limits %+v", c.Limits)
	}
	if c.Referral.RewardBatch <= 0 {
		return fmt.Errorf("config: Referral.RewardBatch must be positive, got %d", c.Referral.RewardBatch)
	}
	if c.Referral.RewardMonths <= 0 {
		return fmt.Errorf("config: Referral.RewardMonths must be positive, got %d", c.Referral.RewardMonths)
	}
	if c.Subscription.Days <= 0 {
		return fmt.Errorf("config: Subscription.Days must be positive, got %d", c.Subscription.Days)
	}
	if _, err := c.Promo.Parse(); err != nil {
		return err
	}
	return nil
}

// Parse returns the promo codes mapped to the number of days they grant.
// Codes are matched case-insensitively and stored upper-case.
func (p PromoConfig) Parse() (map[string]int, error) {
	codes := make(map[string]int)
	for _, item := range strings.Split(p.Codes, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, daysStr, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("config: promo entry %q must be CODE:days", item)
		}
		days, err := strconv.Atoi(strings.TrimSpace(daysStr))
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("config: promo entry %q has invalid days", item)
		}
		codes[strings.ToUpper(strings.TrimSpace(code))] = days
	}
	return codes, nil
}
