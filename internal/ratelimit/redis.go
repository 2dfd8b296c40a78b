package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// ARGV: ёмкость, пополнение в секунду, текущее время в миллисекундах.
// Состояние ведра хранится в одном хэше и живёт, пока ведро не наполнится.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

local elapsed = math.max(0, now - ts) / 1000
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', key, math.ceil(capacity / rate * 1000) + 1000)
return allowed
`)

// Redis token bucket, общий для всех экземпляров сервиса.
type Redis struct {
	client redis.Scripter
	prefix string
	rps    float64
	burst  int
}

// NewRedis создаёт распределённый лимитер. Ключи хранятся с префиксом prefix.
func NewRedis(client redis.Scripter, prefix string, rps float64, burst int) *Redis {
	if burst < 1 {
		burst = 1
	}
	return &Redis{client: client, prefix: prefix, rps: rps, burst: burst}
}

// Allow при ошибке Redis возвращает true вместе с ошибкой: запросы не
// блокируются из-за недоступности лимитера.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.rps <= 0 || math.IsInf(r.rps, 1) {
		return true, nil
	}

	res, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		r.burst, r.rps, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return true, fmt.Errorf("redis rate limit: %w", err)
	}
	return res == 1, nil
}
