package quota

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Window counters live under date-stamped keys so rollover is implicit:
// a new day or month simply addresses a fresh key. Expiries are generous
// backstops, not the rollover mechanism.
const (
	dailyKeyTTL   = 48 * time.Hour
	monthlyKeyTTL = 40 * 24 * time.Hour
)

// Both counters are read and conditionally bumped in one script so that
// concurrent spenders can never jointly exceed either limit.
const luaTrySpend = `
local daily_key = KEYS[1]
local monthly_key = KEYS[2]
local n = tonumber(ARGV[1])
local daily_limit = tonumber(ARGV[2])
local monthly_limit = tonumber(ARGV[3])

local d = tonumber(redis.call("GET", daily_key) or "0")
local m = tonumber(redis.call("GET", monthly_key) or "0")

if m + n > monthly_limit then
  return "denied_monthly"
end
if d + n > daily_limit then
  return "denied_daily"
end

redis.call("INCRBY", daily_key, n)
redis.call("EXPIRE", daily_key, tonumber(ARGV[4]))
redis.call("INCRBY", monthly_key, n)
redis.call("EXPIRE", monthly_key, tonumber(ARGV[5]))
return "granted"
`

const luaRefund = `
for i = 1, 2 do
  local v = redis.call("DECRBY", KEYS[i], tonumber(ARGV[1]))
  if v < 0 then
    redis.call("SET", KEYS[i], 0)
  end
end
return "ok"
`

// RedisLedger keeps the authoritative counters in Redis. Any store error
// surfaces as domain.ErrLedgerUnavailable so the paid adapter fails closed.
type RedisLedger struct {
	rdb    *redis.Client
	cfg    Config
	spend  *redis.Script
	refund *redis.Script

	now func() time.Time
}

// NewRedisLedger constructs a RedisLedger. A nil location means UTC.
func NewRedisLedger(rdb *redis.Client, cfg Config) *RedisLedger {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RedisLedger{
		rdb:    rdb,
		cfg:    cfg,
		spend:  redis.NewScript(luaTrySpend),
		refund: redis.NewScript(luaRefund),
		now:    time.Now,
	}
}

func (l *RedisLedger) keys() []string {
	now := l.now().In(l.cfg.Location)
	return []string{
		"quota:paid:daily:" + now.Format("2006-01-02"),
		"quota:paid:monthly:" + now.Format("2006-01"),
	}
}

// TrySpend atomically checks both limits and spends only when both allow.
func (l *RedisLedger) TrySpend(ctx domain.Context, n int) (domain.SpendDecision, error) {
	res, err := l.spend.Run(ctx, l.rdb, l.keys(),
		n, l.cfg.DailyLimit, l.cfg.MonthlyLimit,
		int(dailyKeyTTL.Seconds()), int(monthlyKeyTTL.Seconds()),
	).Text()
	if err != nil {
		return "", fmt.Errorf("op=quota.try_spend: %w: %w", domain.ErrLedgerUnavailable, err)
	}
	decision := domain.SpendDecision(res)
	observability.QuotaSpendTotal.WithLabelValues(res).Inc()
	return decision, nil
}

// Refund returns spend after a failed request, floored at zero.
func (l *RedisLedger) Refund(ctx domain.Context, n int) error {
	if err := l.refund.Run(ctx, l.rdb, l.keys(), n).Err(); err != nil {
		return fmt.Errorf("op=quota.refund: %w: %w", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// Status reports current usage and the next daily reset instant.
func (l *RedisLedger) Status(ctx domain.Context) (domain.QuotaStatus, error) {
	keys := l.keys()
	vals, err := l.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return domain.QuotaStatus{}, fmt.Errorf("op=quota.status: %w: %w", domain.ErrLedgerUnavailable, err)
	}
	st := domain.QuotaStatus{
		MonthlyLimit: l.cfg.MonthlyLimit,
		DailyLimit:   l.cfg.DailyLimit,
		ResetAt:      nextDailyReset(l.now(), l.cfg.Location),
	}
	st.DailyUsed = parseCount(vals[0])
	st.MonthlyUsed = parseCount(vals[1])
	return st, nil
}

func parseCount(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}

var _ domain.Ledger = (*RedisLedger)(nil)
