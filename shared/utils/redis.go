package utils

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	RedisClient *redis.Client
	ctx         = context.Background()
)

// InitRedis initializes the Redis client
func InitRedis() error {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}

	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}

	addr := fmt.Sprintf("%s:%s", redisHost, redisPort)

	RedisClient = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "", // No password by default
		DB:           0,  // Default DB
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return nil
}

// CacheSet stores a value in Redis with expiration
func CacheSet(key string, value string, expiration time.Duration) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Set(ctx, key, value, expiration).Err()
}

// CacheGet retrieves a value from Redis
func CacheGet(key string) (string, error) {
	if RedisClient == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}
	val, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key not found")
	}
	return val, err
}

// CacheDelete removes a key from Redis
func CacheDelete(key string) error {
	return RedisClient.Del(ctx, key).Err()
}

// GetRedisClient returns the Redis client instance (for advanced operations)
func GetRedisClient() *redis.Client {
	return RedisClient
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// Current-tenant session binding
//
// A user may hold memberships in many tenants; the session coordinator keeps
// the one currently bound to their session here, keyed per user so the
// binding is never process-global.

const currentTenantTTL = 24 * time.Hour

func currentTenantKey(userID string) string {
	return fmt.Sprintf("session:current_tenant:%s", userID)
}

// SetCurrentTenant records the tenant currently bound to a user's session.
func SetCurrentTenant(userID string, tenantID uuid.UUID) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Set(ctx, currentTenantKey(userID), tenantID.String(), currentTenantTTL).Err()
}

// GetCurrentTenant returns the tenant bound to a user's session, uuid.Nil if
// none is bound.
func GetCurrentTenant(userID string) (uuid.UUID, error) {
	if RedisClient == nil {
		return uuid.Nil, fmt.Errorf("Redis client not initialized")
	}
	val, err := RedisClient.Get(ctx, currentTenantKey(userID)).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

// ClearCurrentTenant drops a user's session binding (logout).
func ClearCurrentTenant(userID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Del(ctx, currentTenantKey(userID)).Err()
}

// Per-tenant sweep locks
//
// Overlapping enforcement runs must not interleave restrict/restore/remediate
// for the same tenant. SetNX with a TTL gives single-writer discipline; the
// token guards against releasing a lock another run has since acquired.

func tenantLockKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("enforcement:lock:%s", tenantID)
}

// AcquireTenantLock takes the per-tenant enforcement lock. Returns the lock
// token on success, empty string if another run holds the lock.
func AcquireTenantLock(tenantID uuid.UUID, ttl time.Duration) (string, error) {
	if RedisClient == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}
	token := uuid.New().String()
	ok, err := RedisClient.SetNX(ctx, tenantLockKey(tenantID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// releaseLockScript deletes the lock key only while the token still owns
// it. Check and delete must be one atomic step: between a GET and a DEL the
// lock can expire and be re-acquired, and the DEL would drop another run's
// lock.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReleaseTenantLock releases the lock if the token still owns it.
func ReleaseTenantLock(tenantID uuid.UUID, token string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return releaseLockScript.Run(ctx, RedisClient, []string{tenantLockKey(tenantID)}, token).Err()
}

// Monthly API-call metering and throttle flag

func apiCallKey(tenantID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("api:calls:%s:%s", tenantID, now.Format("2006-01"))
}

// IncrAPICall counts one API call against the tenant's monthly counter. The
// key expires after ~2 months so stale months clean themselves up.
func IncrAPICall(tenantID uuid.UUID, now time.Time) (int64, error) {
	if RedisClient == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	key := apiCallKey(tenantID, now)
	count, err := RedisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		RedisClient.Expire(ctx, key, 62*24*time.Hour)
	}
	return count, nil
}

// MonthlyAPICallCount returns the tenant's API-call count for the month
// containing now.
func MonthlyAPICallCount(tenantID uuid.UUID, now time.Time) (int64, error) {
	if RedisClient == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	val, err := RedisClient.Get(ctx, apiCallKey(tenantID, now)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func throttleKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("api:throttled:%s", tenantID)
}

// SetAPIThrottled flags or unflags a tenant for API throttling. Actual rate
// limiting happens at the gateway; this is only the flag remediation sets.
func SetAPIThrottled(tenantID uuid.UUID, throttled bool) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if throttled {
		return RedisClient.Set(ctx, throttleKey(tenantID), "1", 0).Err()
	}
	return RedisClient.Del(ctx, throttleKey(tenantID)).Err()
}

// IsAPIThrottled reports whether a tenant is flagged for throttling.
func IsAPIThrottled(tenantID uuid.UUID) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	count, err := RedisClient.Exists(ctx, throttleKey(tenantID)).Result()
	return count > 0, err
}
