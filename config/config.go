package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// 音频引擎配置
	SampleRate      int     // render sample rate of the software audio context
	AnalyserFFTSize int     // analysis tap resolution (fftSize, bins = fftSize/2)
	FrameRate       int     // visualizer frames per second
	OnlineByDefault bool    // initial connectivity state for the transport
	DefaultVolume   float64 // initial element volume, 0..1

	// 派对同步配置
	PartyTransport string // "ws", "redis" or "local"
	RelayAddr      string // listen address of the websocket relay
	RelayURL       string // websocket URL clients dial, e.g. ws://127.0.0.1:8090/party
	RelaySecret    string // HMAC secret for party invite tokens
	InviteBaseURL  string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // keyspace for every party key and channel
	RedisPool     int
	RedisRetries  int // extra ping attempts while the server starts

	// 数据库配置
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	LibraryDir string // directory scanned for local media
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 14),

		SampleRate:      getEnvInt("AUDIO_SAMPLE_RATE", 44100),
		AnalyserFFTSize: getEnvInt("ANALYSER_FFT_SIZE", 256),
		FrameRate:       getEnvInt("VISUALIZER_FPS", 60),
		OnlineByDefault: getEnvBool("PLAYER_ONLINE", true),
		DefaultVolume:   getEnvFloat("PLAYER_VOLUME", 1.0),

		PartyTransport: getEnv("PARTY_TRANSPORT", "ws"),
		RelayAddr:      getEnv("RELAY_ADDR", ":8090"),
		RelayURL:       getEnv("RELAY_URL", "ws://127.0.0.1:8090/party"),
		RelaySecret:    os.Getenv("RELAY_SECRET"), // no hardcoded default for secrets
		InviteBaseURL:  getEnv("INVITE_BASE_URL", "https://mtc-player.com"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_KEY_PREFIX", "mtcplayer"),
		RedisPool:     getEnvInt("REDIS_POOL_SIZE", 10),
		RedisRetries:  getEnvInt("REDIS_CONNECT_RETRIES", 3),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "mtcplayer"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "mtcplayer"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LibraryDir: getEnv("LIBRARY_DIR", "media"),
	}
}
