package log

import (
	"time"

	kitlog "github.com/go-kit/log"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// RateLimitedLogger drops log lines beyond a per-second budget. Intended for
// call sites that can fire per operation under contention; the number of
// suppressed lines is available from Dropped.
type RateLimitedLogger struct {
	limiter *rate.Limiter
	logger  kitlog.Logger
	dropped *atomic.Int64
}

var _ kitlog.Logger = (*RateLimitedLogger)(nil)

// NewRateLimitedLogger returns a logger that emits at most logsPerSecond
// lines per second through the wrapped logger.
func NewRateLimitedLogger(logsPerSecond int, logger kitlog.Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
		dropped: atomic.NewInt64(0),
	}
}

func (l *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		l.dropped.Inc()
		return nil
	}
	return l.logger.Log(keyvals...)
}

// Dropped returns the number of lines suppressed so far.
func (l *RateLimitedLogger) Dropped() int64 {
	return l.dropped.Load()
}
