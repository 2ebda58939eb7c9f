package config

import (
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Catalog      CatalogConfig
	Mail         MailConfig
	Payment      PaymentConfig
	Registration RegistrationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CatalogConfig governs the read cache in front of arrangement listings and season windows.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// MailConfig configures outbound notification mail.
type MailConfig struct {
	Enabled        bool
	SendgridAPIKey string
	FromAddress    string
	FromName       string
	SubjectPrefix  string
	Workers        int
	MaxRetries     int
}

// PaymentConfig configures the payment capture provider.
type PaymentConfig struct {
	Enabled           bool
	MidtransServerKey string
	Production        bool
}

// RegistrationConfig tunes the transactional registration workflow.
type RegistrationConfig struct {
	TxIsolation string
}

// IsolationLevel maps the configured isolation name onto database/sql levels.
func (c RegistrationConfig) IsolationLevel() sql.IsolationLevel {
	switch strings.ToLower(strings.TrimSpace(c.TxIsolation)) {
	case "serializable":
		return sql.LevelSerializable
	case "repeatable_read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelReadCommitted
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("CATALOG_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Mail = MailConfig{
		Enabled:        v.GetBool("MAIL_ENABLED"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		Workers:        v.GetInt("MAIL_WORKERS"),
		MaxRetries:     v.GetInt("MAIL_MAX_RETRIES"),
	}

	cfg.Payment = PaymentConfig{
		Enabled:           v.GetBool("PAYMENT_ENABLED"),
		MidtransServerKey: v.GetString("MIDTRANS_SERVER_KEY"),
		Production:        v.GetBool("MIDTRANS_PRODUCTION"),
	}

	cfg.Registration = RegistrationConfig{
		TxIsolation: v.GetString("REGISTRATION_TX_ISOLATION"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_registry")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "school-registry")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CATALOG_CACHE_ENABLED", false)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "office@example.org")
	v.SetDefault("MAIL_FROM_NAME", "School Office")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[School] ")
	v.SetDefault("MAIL_WORKERS", 1)
	v.SetDefault("MAIL_MAX_RETRIES", 3)

	v.SetDefault("PAYMENT_ENABLED", false)
	v.SetDefault("MIDTRANS_SERVER_KEY", "")
	v.SetDefault("MIDTRANS_PRODUCTION", false)

	v.SetDefault("REGISTRATION_TX_ISOLATION", "read_committed")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
