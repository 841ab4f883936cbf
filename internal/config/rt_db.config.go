package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB creates the PostgreSQL connection pool for the realtime service.
func ConnectDB() (*pgxpool.Pool, error) {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	log.Printf("[DB] Connecting to database: host=%s port=%s db=%s user=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_USER"),
	)

	maxConns := getEnvAsInt("DB_MAX_CONNS", 20)
	minConns := getEnvAsInt("DB_MIN_CONNS", 4)
	maxConnLifetime := getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	maxConnIdleTime := getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Printf("[DB] Failed to parse config: %v", err)
		return nil, err
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Printf("[DB] Failed to create pool: %v", err)
		return nil, err
	}

	if err := dbpool.Ping(ctx); err != nil {
		log.Printf("[DB] Failed to ping database: %v", err)
		return nil, err
	}

	log.Printf("[DB] Connected. Stats: idle=%d active=%d total=%d max=%d",
		dbpool.Stat().IdleConns(),
		dbpool.Stat().AcquiredConns(),
		dbpool.Stat().TotalConns(),
		dbpool.Stat().MaxConns(),
	)

	return dbpool, nil
}
