package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBUrl      string `mapstructure:"DB_URL"`
	DBMaxConns int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32  `mapstructure:"DB_MIN_CONNS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	OTPTTL           time.Duration `mapstructure:"OTP_TTL"`
	OTPHashCost      int           `mapstructure:"OTP_HASH_COST"`
	PhoneCountryCode string        `mapstructure:"PHONE_COUNTRY_CODE"`

	LockKey   string        `mapstructure:"LOCK_KEY"`
	LockDelay time.Duration `mapstructure:"LOCK_DELAY"`

	SessionSettleDelay time.Duration `mapstructure:"SESSION_SETTLE_DELAY"`
	SessionLockTTL     time.Duration `mapstructure:"SESSION_LOCK_TTL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SMSGatewayURL string `mapstructure:"SMS_GATEWAY_URL"`
	SMSAPIKey     string `mapstructure:"SMS_API_KEY"`
	SMSSender     string `mapstructure:"SMS_SENDER"`
	SMSDryRun     bool   `mapstructure:"SMS_DRY_RUN"`
}

var defaults = map[string]any{
	"ENV":                  "development",
	"HTTP_ADDR":            ":8080",
	"LOG_LEVEL":            "info",
	"DB_URL":               "",
	"DB_MAX_CONNS":         25,
	"DB_MIN_CONNS":         5,
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"JWT_SECRET":           "",
	"OTP_TTL":              "15m",
	"OTP_HASH_COST":        10,
	"PHONE_COUNTRY_CODE":   "81",
	"LOCK_KEY":             "customer_access",
	"LOCK_DELAY":           "60s",
	"SESSION_SETTLE_DELAY": "100ms",
	"SESSION_LOCK_TTL":     "5s",
	"SMTP_HOST":            "localhost",
	"SMTP_PORT":            25,
	"SMTP_USER":            "",
	"SMTP_PASSWORD":        "",
	"SMTP_FROM":            "no-reply@localhost",
	"SMS_GATEWAY_URL":      "",
	"SMS_API_KEY":          "",
	"SMS_SENDER":           "",
	"SMS_DRY_RUN":          false,
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	switch {
	case c.DBUrl == "":
		return errors.New("DB_URL is required")
	case c.JWTSecret == "":
		return errors.New("JWT_SECRET is required")
	case c.OTPTTL <= 0:
		return errors.New("OTP_TTL must be positive")
	case c.LockDelay <= 0:
		return errors.New("LOCK_DELAY must be positive")
	case c.SessionSettleDelay < 0:
		return errors.New("SESSION_SETTLE_DELAY must not be negative")
	case c.SessionLockTTL <= 0:
		return errors.New("SESSION_LOCK_TTL must be positive")
	case c.LockKey == "":
		return errors.New("LOCK_KEY is required")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
