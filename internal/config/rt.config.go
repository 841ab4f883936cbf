package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr             string
	RedisAddr            string
	RedisPass            string
	PresenceRoom         string
	PresenceSyncInterval time.Duration
	HeartbeatInterval    time.Duration
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Realtime: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8013"),
		RedisAddr:            getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:            getEnv("REDIS_PASS", ""),
		PresenceRoom:         getEnv("PRESENCE_ROOM", "portal"),
		PresenceSyncInterval: getEnvAsDuration("PRESENCE_SYNC_INTERVAL", 15*time.Second),
		HeartbeatInterval:    getEnvAsDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
