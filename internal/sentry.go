package internal

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// GetSentryHubFromContextOrDefault is a version of sentry.GetHubFromContext which
// automatically falls back to sentry.CurrentHub if the given context has not been
// attached a hub.
//
// The returned pointer is always nonnil.
func GetSentryHubFromContextOrDefault(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return hub
}

// ReportErrorToSentry captures err on the context's hub, tagging it with the room when known.
func ReportErrorToSentry(ctx context.Context, roomID string, err error) {
	hub := GetSentryHubFromContextOrDefault(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		if roomID != "" {
			scope.SetTag("room", roomID)
		}
		hub.CaptureException(err)
	})
}

// ReportPanicsToSentry must be deferred directly. It reports the panic and re-panics.
func ReportPanicsToSentry() {
	panicData := recover()
	if panicData != nil {
		sentry.CurrentHub().Recover(panicData)
		sentry.Flush(5 * time.Second)
		panic(panicData)
	}
}
