package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Email    EmailConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Payment  PaymentConfig
	Booking  BookingConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port           string
	PublicURL      string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	SeedData      bool
	MigrationsDir string
}

type TopicConfig struct {
	BookingReserved  string
	BookingConfirmed string
	BookingCancelled string
}

// All returns every topic the service publishes to.
func (t TopicConfig) All() []string {
	return []string{t.BookingReserved, t.BookingConfirmed, t.BookingCancelled}
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	FromName     string
	// QRSecret keys the encrypted door-check payload in confirmation QR codes.
	QRSecret string
}

// Enabled reports whether outgoing mail is configured.
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != ""
}

type PaymentConfig struct {
	// Provider is "stripe" or "remote".
	Provider            string
	Currency            string
	StripeSecretKey     string
	StripeWebhookSecret string
	RemoteSessionURL    string
	RemoteAPIKey        string
	ReturnSecret        string // signs the status carried by return URLs
	Timeout             time.Duration
}

type BookingConfig struct {
	DefaultMaxSeats        int
	DefaultSeatsPerBooking int
	DefaultDeadline        string
	SweepInterval          time.Duration
	ReconcileLockTTL       time.Duration
}

type AuthConfig struct {
	JWTSecret  string
	OIDCIssuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8084"),
			PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:5173"), "/"),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "reservations@pressingcomedyclub.fr"),
			FromName:     getEnv("SMTP_FROM_NAME", "Pressing Comedy Club"),
			QRSecret:     getEnv("TICKET_QR_SECRET", "change-me"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			SeedData:      getEnvBool("DB_SEED_DATA", false),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingReserved:  getEnv("KAFKA_TOPIC_RESERVED", "comedy.booking.reserved"),
				BookingConfirmed: getEnv("KAFKA_TOPIC_CONFIRMED", "comedy.booking.confirmed"),
				BookingCancelled: getEnv("KAFKA_TOPIC_CANCELLED", "comedy.booking.cancelled"),
			},
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(getEnv("PAYMENT_PROVIDER", "stripe")),
			Currency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "eur")),
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			RemoteSessionURL:    getEnv("PAYMENT_SESSION_URL", ""),
			RemoteAPIKey:        getEnv("PAYMENT_SESSION_API_KEY", ""),
			ReturnSecret:        getEnv("PAYMENT_RETURN_SECRET", ""),
			Timeout:             getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second),
		},
		Booking: BookingConfig{
			DefaultMaxSeats:        getEnvInt("BOOKING_DEFAULT_MAX_SEATS", 50),
			DefaultSeatsPerBooking: getEnvInt("BOOKING_DEFAULT_SEATS_PER_BOOKING", 10),
			DefaultDeadline:        getEnv("BOOKING_DEFAULT_DEADLINE", "1 hour"),
			SweepInterval:          getEnvDuration("RESERVATION_SWEEP_INTERVAL", time.Minute),
			ReconcileLockTTL:       getEnvDuration("RECONCILE_LOCK_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
