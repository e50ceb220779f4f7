package config

import (
	"os"
	"strconv"
	"time"

	"critical-alerts/common/config"
)

// 存储后端
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config 危急值通知服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 医院后端 REST API
	API struct {
		BaseURL    string
		Token      string
		Timeout    time.Duration
		RetryCount int
		PageSize   int // 队列查询每页数量，默认 100
	}

	Alerts struct {
		PollInterval     time.Duration // 队列状态轮询间隔，默认 10秒
		ScanDelay        time.Duration // 启动扫描延迟，默认 2秒
		CheckConcurrency int           // 每次轮询的并发检查数，默认 4

		Storage struct {
			Backend string // redis 或 postgres
			Key     string // 持久化槽位名称，默认 "critical-notifications"
		}

		// 变更广播
		Broadcast struct {
			Stream       string // Redis Stream 名称，为空则不发布
			StreamMaxLen int64
			MQTTTopic    string // MQTT 主题，为空则不发布
		}
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hms")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "critical-alerts")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:8000/api")
	cfg.API.Token = getEnv("API_TOKEN", "")
	cfg.API.Timeout = getDuration("API_TIMEOUT", 15*time.Second)
	cfg.API.RetryCount = getInt("API_RETRY_COUNT", 2)
	cfg.API.PageSize = getInt("API_PAGE_SIZE", 100)

	cfg.Alerts.PollInterval = getDuration("ALERTS_POLL_INTERVAL", 10*time.Second)
	cfg.Alerts.ScanDelay = getDuration("ALERTS_SCAN_DELAY", 2*time.Second)
	cfg.Alerts.CheckConcurrency = getInt("ALERTS_CHECK_CONCURRENCY", 4)
	cfg.Alerts.Storage.Backend = getEnv("ALERTS_STORAGE_BACKEND", StorageRedis)
	cfg.Alerts.Storage.Key = getEnv("ALERTS_STORAGE_KEY", "critical-notifications")
	cfg.Alerts.Broadcast.Stream = getEnv("ALERTS_STREAM", "critical-notifications:events")
	cfg.Alerts.Broadcast.StreamMaxLen = int64(getInt("ALERTS_STREAM_MAXLEN", 1000))
	cfg.Alerts.Broadcast.MQTTTopic = getEnv("MQTT_TOPIC", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

// getDuration 支持 "10s" 形式，也兼容纯数字（按秒）
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
