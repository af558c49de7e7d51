package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capitolworks/legis/internal/engine"
	"github.com/capitolworks/legis/internal/models"
)

// reserveScript performs the full check-then-record atomically on the Redis
// server so concurrent submissions cannot both observe the same counters.
//
// KEYS[1] active-bill counter for the sponsor
// KEYS[2] daily submission counter for the chamber/day
// KEYS[3] last-submission timestamp (unix ms) for the sponsor
// ARGV: maxActive, dailyMax, nowMs, cooldownMs, dailyTTLSeconds
//
// The daily counter expires after its TTL and the last-submission key after
// one cooldown period, so stale keys never accumulate.
var reserveScript = redis.NewScript(`
local active = tonumber(redis.call('GET', KEYS[1]) or '0')
if active >= tonumber(ARGV[1]) then
  return {0, 'TOO_MANY_ACTIVE', active}
end
local daily = tonumber(redis.call('GET', KEYS[2]) or '0')
if daily >= tonumber(ARGV[2]) then
  return {0, 'DAILY_CHAMBER_LIMIT', daily}
end
local last = tonumber(redis.call('GET', KEYS[3]) or '-1')
local now = tonumber(ARGV[3])
if last >= 0 and now < last + tonumber(ARGV[4]) then
  return {0, 'COOLDOWN_ACTIVE', last + tonumber(ARGV[4])}
end
redis.call('INCR', KEYS[1])
redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[5]))
if tonumber(ARGV[4]) > 0 then
  redis.call('SET', KEYS[3], now, 'PX', ARGV[4])
else
  redis.call('SET', KEYS[3], now)
end
return {1, '', 0}
`)

var releaseScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('SET', KEYS[1], '0')
end
return v
`)

// Redis is a Limiter backed by shared Redis counters, for deployments running
// more than one engine instance. It takes the Scripter interface so tests can
// substitute a scripted fake for the client.
type Redis struct {
	client redis.Scripter
	limits Limits
	prefix string
}

func NewRedis(client redis.Scripter, limits Limits) *Redis {
	return &Redis{client: client, limits: limits, prefix: "legis:limiter"}
}

func (r *Redis) activeKey(sponsorID string) string {
	return fmt.Sprintf("%s:active:%s", r.prefix, sponsorID)
}

func (r *Redis) dailyKey(chamber models.Chamber, now time.Time) string {
	return fmt.Sprintf("%s:daily:%s:%s", r.prefix, chamber, dayKey(now))
}

func (r *Redis) lastKey(sponsorID string) string {
	return fmt.Sprintf("%s:last:%s", r.prefix, sponsorID)
}

func (r *Redis) Reserve(ctx context.Context, sponsorID string, chamber models.Chamber, now time.Time) (Decision, error) {
	keys := []string{r.activeKey(sponsorID), r.dailyKey(chamber, now), r.lastKey(sponsorID)}
	args := []interface{}{
		r.limits.MaxActivePerSponsor,
		r.limits.DailyChamberMax,
		now.UTC().UnixMilli(),
		r.limits.Cooldown.Milliseconds(),
		int64((48 * time.Hour).Seconds()),
	}
	raw, err := reserveScript.Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("limiter reserve: %w", err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("limiter reserve: unexpected reply %v", raw)
	}
	allowed, _ := vals[0].(int64)
	if allowed == 1 {
		return Decision{Allowed: true}, nil
	}
	code, _ := vals[1].(string)
	detail, _ := vals[2].(int64)
	switch code {
	case engine.CodeTooManyActive:
		return denied(code, fmt.Sprintf("sponsor %s already has %d active bills", sponsorID, detail)), nil
	case engine.CodeDailyChamberLimit:
		return denied(code, fmt.Sprintf("chamber %s reached %d submissions today", chamber, detail)), nil
	case engine.CodeCooldownActive:
		endsAt := time.UnixMilli(detail).UTC()
		d := denied(code, fmt.Sprintf("cooldown active until %s", endsAt.Format(time.RFC3339)))
		d.CooldownEndsAt = &endsAt
		return d, nil
	}
	return Decision{}, fmt.Errorf("limiter reserve: unknown rejection %q", code)
}

func (r *Redis) Release(ctx context.Context, sponsorID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.activeKey(sponsorID)}).Err(); err != nil {
		return fmt.Errorf("limiter release: %w", err)
	}
	return nil
}
