package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Token-bucket login limiter backed by Redis. Optional: the server runs
// without it when no Redis address is configured, and Redis errors degrade
// open so an outage never locks out logins.

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local info = redis.call("HMGET", key, "tokens", "last_refill")
	local tokens = tonumber(info[1])
	local last_refill = tonumber(info[2])

	if tokens == nil then
		tokens = capacity
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local filled_tokens = math.min(capacity, tokens + (delta / 1000 * rate))

	local allowed = 0
	if filled_tokens >= requested then
		filled_tokens = filled_tokens - requested
		allowed = 1
		redis.call("HMSET", key, "tokens", filled_tokens, "last_refill", now)
		redis.call("EXPIRE", key, math.ceil(capacity / rate) * 2)
	end

	return allowed
`)

const (
	loginBurst = 10
	loginRate  = 1.0 // tokens per second, per client IP

	globalLoginBurst = 100
	globalLoginRate  = 25.0 // tokens per second across all clients
)

type Limiter struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisLimiter(addr string, log *logrus.Logger) *Limiter {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, login rate limiter disabled")
		return nil
	}

	log.WithField("addr", addr).Info("login rate limiter enabled")
	return &Limiter{client: rdb, log: log}
}

func (l *Limiter) Allow(ctx context.Context, key string, capacity int, rate float64) (bool, error) {
	now := time.Now().UnixMilli()

	keys := []string{fmt.Sprintf("rate_limit:%s", key)}
	args := []interface{}{capacity, rate, now, 1}

	result, err := tokenBucketScript.Run(ctx, l.client, keys, args...).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
		defer cancel()

		globalAllowed, err := l.Allow(ctx, "login:global", globalLoginBurst, globalLoginRate)
		if err != nil {
			l.log.WithError(err).Warn("global login limiter redis error")
		} else if !globalAllowed {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("System busy"))
			return
		}

		ipAllowed, err := l.Allow(ctx, "login:"+getRealIP(r), loginBurst, loginRate)
		if err != nil {
			l.log.WithError(err).Warn("ip login limiter redis error")
		} else if !ipAllowed {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getRealIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return ip
}
