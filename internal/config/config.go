package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment    string // ENV: production, development, etc.
	Port           string
	AllowedOrigins []string
	AllowedHost    string // production host check; empty disables it

	StoreBackend string // "mongo" (default) or "memory" for local development
	MongoURI     string
	PostgresURI  string
	RedisURI     string

	// MediaBackend selects the attachment uploader: "cloudinary", "s3" or "" (uploads disabled).
	MediaBackend        string
	MediaFolder         string
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	S3Bucket            string
	S3Region            string
	S3Endpoint          string
	S3PublicRead        bool

	KafkaBrokers           []string
	KafkaNotificationTopic string

	// BroadcastMode is "redis" for multi-instance fan-out or "local" for a single process.
	BroadcastMode      string
	UploadTimeout      time.Duration
	MaxUploadBytes     int64
	SendRatePerMinute  int
	SessionQueueLength int
	ShutdownTimeout    time.Duration

	// DevSessions seeds bearer tokens for the memory backend: "token:id,token:id".
	DevSessions map[string]string
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := splitList(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{getEnv("FRONTEND_URL", "http://localhost:3000")}
	}

	return &Config{
		Environment:    env,
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: allowedOrigins,
		AllowedHost:    getEnv("ALLOWED_HOST", ""),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "mongo")),
		MongoURI:     getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/campus_chat")),
		PostgresURI:  getEnv("POSTGRES_URI", "postgres://localhost:5432/campus_chat?sslmode=disable"),
		RedisURI:     getEnv("REDIS_URI", "redis://localhost:6379/0"),

		MediaBackend:        strings.ToLower(getEnv("MEDIA_BACKEND", "cloudinary")),
		MediaFolder:         getEnv("MEDIA_FOLDER", "chat-media"),
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3PublicRead:        getBool("S3_PUBLIC_READ", true),

		KafkaBrokers:           splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaNotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "chat.notifications"),

		BroadcastMode:      strings.ToLower(getEnv("BROADCAST_MODE", "redis")),
		UploadTimeout:      time.Duration(getInt("UPLOAD_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxUploadBytes:     int64(getInt("MAX_UPLOAD_MB", 25)) << 20,
		SendRatePerMinute:  getInt("SEND_RATE_PER_MINUTE", 60),
		SessionQueueLength: getInt("SESSION_QUEUE_LENGTH", 64),
		ShutdownTimeout:    time.Duration(getInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,

		DevSessions: parsePairs(getEnv("DEV_SESSIONS", "")),
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePairs reads "k:v,k:v"; malformed entries are skipped.
func parsePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, item := range splitList(s) {
		k, v, ok := strings.Cut(item, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}
