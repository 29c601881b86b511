package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	MongoURI      string
	MongoDatabase string

	JWTSecret          []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int

	AllowedOrigins []string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
	LogDev   bool
	LogFile  string

	MaxUploadBytes     int64
	AuthRateLimit      float64
	AuthRateBurst      int
	TokenSweepInterval time.Duration
}

// Load reads the configuration from the environment. Call godotenv.Load first
// to pick up a .env file.
func Load() Config {
	return Config{
		Port: EnvDefault("API_PORT", "8080"),

		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: EnvDefault("MONGO_DATABASE", "medrec"),

		JWTSecret:          []byte(os.Getenv("JWT_SECRET")),
		RefreshTokenSecret: []byte(os.Getenv("REFRESH_TOKEN_SECRET")),
		AccessTokenTTL:     EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    EnvDurationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:         EnvIntDefault("BCRYPT_COST", 10),

		AllowedOrigins: CSV(EnvDefault("CORS_ALLOWED_ORIGINS", "*")),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "auth_events"),

		LogLevel: EnvDefault("LOG_LEVEL", "info"),
		LogDev:   os.Getenv("LOG_DEV") == "1",
		LogFile:  os.Getenv("LOG_FILE"),

		MaxUploadBytes:     int64(EnvIntDefault("MAX_UPLOAD_BYTES", 20<<20)),
		AuthRateLimit:      EnvFloatDefault("AUTH_RATE_LIMIT", 5),
		AuthRateBurst:      EnvIntDefault("AUTH_RATE_BURST", 10),
		TokenSweepInterval: EnvDurationDefault("TOKEN_SWEEP_INTERVAL", time.Hour),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
