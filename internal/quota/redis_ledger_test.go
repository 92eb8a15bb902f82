package quota

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

func newRedisLedger(t *testing.T, monthly, daily int) *RedisLedger {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLedger(rdb, Config{MonthlyLimit: monthly, DailyLimit: daily})
}

func TestRedisLedgerSpendUntilDailyDenied(t *testing.T) {
	l := newRedisLedger(t, 250, 8)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		d, err := l.TrySpend(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, domain.SpendGranted, d)
	}
	d, err := l.TrySpend(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SpendDeniedDaily, d)

	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, st.DailyUsed)
	assert.Equal(t, 8, st.MonthlyUsed)
	assert.Equal(t, 8, st.DailyLimit)
}

func TestRedisLedgerMonthlyDenied(t *testing.T) {
	l := newRedisLedger(t, 3, 8)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.TrySpend(ctx, 1)
		require.NoError(t, err)
	}
	d, err := l.TrySpend(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SpendDeniedMonthly, d)
}

func TestRedisLedgerRefund(t *testing.T) {
	l := newRedisLedger(t, 250, 8)
	ctx := context.Background()
	_, err := l.TrySpend(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, l.Refund(ctx, 1))
	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DailyUsed)
	assert.Equal(t, 1, st.MonthlyUsed)
}

func TestRedisLedgerRefundFloorsAtZero(t *testing.T) {
	l := newRedisLedger(t, 250, 8)
	ctx := context.Background()
	_, err := l.TrySpend(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Refund(ctx, 10))
	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.DailyUsed)
}

func TestRedisLedgerFailClosed(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	l := NewRedisLedger(rdb, Config{MonthlyLimit: 250, DailyLimit: 8})
	s.Close()

	_, err := l.TrySpend(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	_, err = l.Status(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}
