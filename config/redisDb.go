package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB returns the shared client, or nil when Redis is not configured.
func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns the lock client, or nil when Redis is not configured.
// Callers must nil-guard: without Redis there is no cross-process run lock.
func GetRedisLock() *redislock.Client {
	return locker
}

func init() {
	// Load env from .env
	godotenv.Load()
	// IMPORTANT (Cloud Run):
	// Do NOT block startup in init() waiting for Redis.
	// Cloud Run requires the container to start listening on $PORT quickly.
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Call this from main() AFTER the HTTP server is listening.
// A missing REDIS_ADDRESS leaves the client nil and the run lock disabled.
func ConnectRedisWithRetry() {
	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; run locking disabled")
		return
	}

	ctx := context.Background()
	var attempt int
	for {
		attempt++
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: "",
			DB:       0,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err == nil {
			locker = redislock.New(rdb)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		} else {
			sleep := time.Second * time.Duration(1<<min(attempt, 5))
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
			time.Sleep(sleep)
		}
	}
}
