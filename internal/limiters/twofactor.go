package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorLockWindow  = 300 * time.Second
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor attempts exhausted")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorLimiterConfig holds the attempt cap and the window it applies to.
type TwoFactorLimiterConfig struct {
	MaxAttempts int
	LockWindow  time.Duration
}

// TwoFactorLimiter counts failed code checks per account and method under
// "2fa_attempt_{method}_{accountID}". Every failure restarts the window.
type TwoFactorLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	window      time.Duration
}

// NewTwoFactorLimiter creates the limiter. Zero-value fields in cfg fall back
// to 5 attempts and a 300s window.
func NewTwoFactorLimiter(redisClient redis.UniversalClient, prefix string, cfg TwoFactorLimiterConfig) *TwoFactorLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultTwoFactorMaxAttempts
	}
	window := cfg.LockWindow
	if window <= 0 {
		window = defaultTwoFactorLockWindow
	}
	return &TwoFactorLimiter{redis: redisClient, prefix: prefix, maxAttempts: int64(max), window: window}
}

func (l *TwoFactorLimiter) key(accountID, method string) string {
	return l.prefix + "2fa_attempt_" + method + "_" + accountID
}

// Attempts returns the failures recorded inside the current window.
func (l *TwoFactorLimiter) Attempts(ctx context.Context, accountID, method string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(accountID, method)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return int(count), nil
}

// Check returns ErrTwoFactorRateLimited once the cap is reached.
func (l *TwoFactorLimiter) Check(ctx context.Context, accountID, method string) error {
	count, err := l.Attempts(ctx, accountID, method)
	if err != nil {
		return err
	}
	if int64(count) >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

// RecordFailure increments the counter, restarts the window and returns how
// many attempts remain.
func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, accountID, method string) (int, error) {
	key := l.key(accountID, method)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	remaining := l.maxAttempts - incr.Val()
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, accountID, method string) error {
	if err := l.redis.Del(ctx, l.key(accountID, method)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}

// MaxAttempts reports the configured cap.
func (l *TwoFactorLimiter) MaxAttempts() int { return int(l.maxAttempts) }

// Window reports the configured lock window.
func (l *TwoFactorLimiter) Window() time.Duration { return l.window }
