package config

import "time"

// Rate limit key strategies.
const (
	KeyByIP        = "ip"
	KeyByUser      = "user"
	KeyByUserRoute = "user_route"
)

// RateLimitConfig configures the Redis token bucket guarding order
// submission and cancellation.  Each key starts with Capacity tokens and
// gains Refill tokens every Interval, up to Capacity.
type RateLimitConfig struct {
	Enabled     bool
	Capacity    int
	Refill      int
	Interval    time.Duration
	KeyStrategy string
	Prefix      string
}

// TTL is how long an idle bucket is kept.  After that long the bucket
// would be full again anyway.
func (c RateLimitConfig) TTL() time.Duration {
	steps := (c.Capacity + c.Refill - 1) / c.Refill
	return time.Duration(steps+1) * c.Interval
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Capacity:    envInt("RATE_LIMIT_CAPACITY", 20),
		Refill:      envInt("RATE_LIMIT_REFILL", 1),
		Interval:    envDur("RATE_LIMIT_INTERVAL", time.Second),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", KeyByUserRoute),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "tickets:rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.Refill < 1 {
		cfg.Refill = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	switch cfg.KeyStrategy {
	case KeyByIP, KeyByUser, KeyByUserRoute:
	default:
		cfg.KeyStrategy = KeyByUserRoute
	}
	return cfg
}
