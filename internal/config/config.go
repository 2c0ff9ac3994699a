package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   string
	LogFile    string
	JWTSecret  string

	CameraBackend string
	CameraDevice  int
	CameraTimeout time.Duration

	DecodeStrategy     string
	DecodeCropFraction float64
	DecodeMaxDimension int
	ScanDebounce       time.Duration

	LookupTimeout time.Duration
	LookupCeiling time.Duration

	SessionIdleTimeout time.Duration
	SnapshotPath       string

	TestMode bool
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		DBPath:     getEnv("DB_PATH", "/data/shopscan.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		CameraBackend: getEnv("CAMERA_BACKEND", "feed"),
		CameraDevice:  getEnvInt("CAMERA_DEVICE", -1),
		CameraTimeout: getEnvDuration("CAMERA_TIMEOUT", 10*time.Second),

		DecodeStrategy:     getEnv("DECODE_STRATEGY", "buffer"),
		DecodeCropFraction: getEnvFloat("DECODE_CROP_FRACTION", 0.6),
		DecodeMaxDimension: getEnvInt("DECODE_MAX_DIMENSION", 1024),
		ScanDebounce:       getEnvDuration("SCAN_DEBOUNCE", 1500*time.Millisecond),

		LookupTimeout: getEnvDuration("LOOKUP_TIMEOUT", 15*time.Second),
		LookupCeiling: getEnvDuration("LOOKUP_CEILING", 20*time.Second),

		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		SnapshotPath:       getEnv("SNAPSHOT_PATH", "/data/snapshots"),

		TestMode: os.Getenv("SHOPSCAN_TEST_MODE") == "1",
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, def int) int {
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

func getEnvFloat(key string, def float64) float64 {
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

// getEnvDuration accepts Go duration strings such as "15s" or "1m30s".
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
