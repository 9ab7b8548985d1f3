package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration, read from config.yaml with
// environment variable overrides.
type Config struct {
	App struct {
		Port            string `mapstructure:"port"`
		Env             string `mapstructure:"env"`
		ReadTimeout     int    `mapstructure:"readTimeout"`
		WriteTimeout    int    `mapstructure:"writeTimeout"`
		ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
	} `mapstructure:"app"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey        string `mapstructure:"apiKey"`
		WebhookSecret string `mapstructure:"webhookSecret"`
	} `mapstructure:"stripe"`
	Telegram struct {
		Enabled         bool             `mapstructure:"enabled"`
		BotToken        string           `mapstructure:"botToken"`
		CommunityChatID int64            `mapstructure:"communityChatId"`
		VIPChatIDs      map[string]int64 `mapstructure:"vipChatIds"`
		DefaultLanguage string           `mapstructure:"defaultLanguage"`
		AdminChatID     int64            `mapstructure:"adminChatId"`
	} `mapstructure:"telegram"`
	Checkout struct {
		SuccessURL string `mapstructure:"successUrl"`
		CancelURL  string `mapstructure:"cancelUrl"`
	} `mapstructure:"checkout"`
}

// LoadConfig reads config.yaml from the given path, layering .env and
// environment variables on top outside production.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// A missing .env is fine; config.yaml and the environment cover it.
		_ = godotenv.Load()
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.readTimeout", 15)
	viper.SetDefault("app.writeTimeout", 15)
	viper.SetDefault("app.shutdownTimeout", 30)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("telegram.defaultLanguage", "en")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if cfg.Stripe.APIKey == "" {
		return nil, fmt.Errorf("stripe.apiKey is required")
	}
	return &cfg, nil
}
