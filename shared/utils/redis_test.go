package utils

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = RedisClient.Close()
		RedisClient = nil
	})
	return mr
}

func TestTenantLockSingleHolder(t *testing.T) {
	startRedis(t)
	tenantID := uuid.New()

	token, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// A second run cannot take the held lock
	second, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, ReleaseTenantLock(tenantID, token))

	third, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestReleaseTenantLockForeignToken(t *testing.T) {
	startRedis(t)
	tenantID := uuid.New()

	token, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Releasing with a stale token must leave the holder's lock in place
	require.NoError(t, ReleaseTenantLock(tenantID, "stale-token"))

	held, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestReleaseTenantLockAfterExpiryAndReacquire(t *testing.T) {
	mr := startRedis(t)
	tenantID := uuid.New()

	first, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)

	// The first holder's lock expires and another run takes it
	mr.FastForward(2 * time.Minute)
	second, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, second)

	// The late release from the first holder must not free the new lock
	require.NoError(t, ReleaseTenantLock(tenantID, first))
	blocked, err := AcquireTenantLock(tenantID, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	require.NoError(t, ReleaseTenantLock(tenantID, second))
}

func TestAPICallMeteringAndThrottle(t *testing.T) {
	startRedis(t)
	tenantID := uuid.New()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	count, err := IncrAPICall(tenantID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = IncrAPICall(tenantID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	monthly, err := MonthlyAPICallCount(tenantID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), monthly)

	// A new month starts from zero
	monthly, err = MonthlyAPICallCount(tenantID, now.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Zero(t, monthly)

	throttled, err := IsAPIThrottled(tenantID)
	require.NoError(t, err)
	assert.False(t, throttled)

	require.NoError(t, SetAPIThrottled(tenantID, true))
	throttled, err = IsAPIThrottled(tenantID)
	require.NoError(t, err)
	assert.True(t, throttled)

	require.NoError(t, SetAPIThrottled(tenantID, false))
	throttled, err = IsAPIThrottled(tenantID)
	require.NoError(t, err)
	assert.False(t, throttled)
}
