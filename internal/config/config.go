package config

import (
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL          string  `mapstructure:"DATABASE_URL"`
	JWTSecret            string  `mapstructure:"JWT_SECRET"`
	RedisURL             string  `mapstructure:"REDIS_URL"`
	RabbitMQURL          string  `mapstructure:"RABBITMQ_URL"`
	NotificationExchange string  `mapstructure:"NOTIFICATION_EXCHANGE"`
	GatewayBaseURL       string  `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAPIKey        string  `mapstructure:"GATEWAY_API_KEY"`
	GatewayCurrency      string  `mapstructure:"GATEWAY_CURRENCY"`
	SurchargePercent     float64 `mapstructure:"GATEWAY_SURCHARGE_PERCENT"`
	PageSize             int     `mapstructure:"PAGE_SIZE"`
	S3Bucket             string  `mapstructure:"S3_BUCKET"`
	AWSRegion            string  `mapstructure:"AWS_REGION"`
	GapSweepSchedule     string  `mapstructure:"GAP_SWEEP_SCHEDULE"`
	ServerPort           string  `mapstructure:"SERVER_PORT"`
	SMTPHost             string  `mapstructure:"SMTP_HOST"`
	SMTPPort             string  `mapstructure:"SMTP_PORT"`
	EmailAddress         string  `mapstructure:"EMAIL_ADDRESS"`
	EmailPassword        string  `mapstructure:"EMAIL_PASSWORD"`
	OpsEmail             string  `mapstructure:"OPS_EMAIL"`
}

var keys = []string{
	"DATABASE_URL", "JWT_SECRET", "REDIS_URL", "RABBITMQ_URL", "NOTIFICATION_EXCHANGE",
	"GATEWAY_BASE_URL", "GATEWAY_API_KEY", "GATEWAY_CURRENCY", "GATEWAY_SURCHARGE_PERCENT",
	"PAGE_SIZE", "S3_BUCKET", "AWS_REGION", "GAP_SWEEP_SCHEDULE", "SERVER_PORT",
	"SMTP_HOST", "SMTP_PORT", "EMAIL_ADDRESS", "EMAIL_PASSWORD", "OPS_EMAIL",
}

// LoadConfig reads the optional .env file at path and then the process environment.
// Environment variables win over the file.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Println("Error loading .env file, continuing with system environment variables")
		}
	}

	viper.SetDefault("NOTIFICATION_EXCHANGE", "fundledger.notifications")
	viper.SetDefault("GATEWAY_CURRENCY", "INR")
	viper.SetDefault("GATEWAY_SURCHARGE_PERCENT", 2)
	viper.SetDefault("PAGE_SIZE", 10)
	viper.SetDefault("AWS_REGION", "ap-south-1")
	viper.SetDefault("GAP_SWEEP_SCHEDULE", "@every 10m")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SMTP_HOST", "smtp.gmail.com")
	viper.SetDefault("SMTP_PORT", "587")
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if config.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	if config.PageSize <= 0 {
		return nil, errors.New("PAGE_SIZE must be positive")
	}
	if config.SurchargePercent < 0 {
		return nil, errors.New("GATEWAY_SURCHARGE_PERCENT must not be negative")
	}
	return &config, nil
}

// OpsMailEnabled reports whether operator alerts should also go out by email.
func (c *Config) OpsMailEnabled() bool {
	return c.EmailAddress != "" && c.OpsEmail != ""
}

func (c *Config) Surcharge() decimal.Decimal {
	return decimal.NewFromFloat(c.SurchargePercent)
}
