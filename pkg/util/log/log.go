// Package log holds the library's logging conventions: a go-kit logger
// filtered at info level, and a rate-limited wrapper for logging on hot paths
// such as pool flush/refill.
package log

import (
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the shared default logger. Components take an injected
// kitlog.Logger and fall back to this when given nil.
var Logger = NewDefault()

// NewDefault returns a logfmt logger on stderr at info level, with
// timestamps and caller annotation.
func NewDefault() kitlog.Logger {
	l := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	l = level.NewFilter(l, level.AllowInfo())
	return kitlog.With(l, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
}
