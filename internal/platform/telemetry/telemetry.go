// Package telemetry reports unhandled errors to Sentry.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Options configures error reporting. An empty DSN disables reporting.
type Options struct {
	DSN         string
	Environment string
	Release     string
}

// Init initializes the global Sentry client. It reports whether events will be sent.
func Init(opts Options) (bool, error) {
	if opts.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       1.0,
		AttachStacktrace: true,
		ServerName:       "", // Don't leak hostnames
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}
	return true, nil
}

// scrubEvent drops request data that may identify the browser session.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		event.Request.Cookies = ""
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "Authorization")
	}
	return event
}

// Flush waits for buffered events to be delivered.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// PanicHandler renders the response after a recovered panic.
type PanicHandler func(c *gin.Context, recovered any)

// Recovery recovers panics, logs them, reports them to Sentry and delegates
// the response to onPanic.
func Recovery(onPanic PanicHandler) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		slog.Error("panic recovered",
			"error", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.Scope().SetTag("route", c.FullPath())
		hub.RecoverWithContext(c.Request.Context(), recovered)

		if onPanic != nil {
			onPanic(c, recovered)
		}
		c.Abort()
	})
}
