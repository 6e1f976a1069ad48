// Package telemetry forwards built errors to Sentry when a DSN is configured.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
	"github.com/tphakala/shoppinglist/internal/logger"
)

const flushTimeout = 2 * time.Second

// Init configures Sentry and installs the error reporter. The returned func
// removes the reporter and flushes pending events; it is never nil when err
// is nil. An empty DSN disables telemetry.
func Init(settings conf.TelemetrySettings, release string, log logger.Logger) (func(), error) {
	if settings.SentryDSN == "" {
		return func() {}, nil
	}
	return initClient(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		Environment:      settings.Environment,
		Release:          release,
		AttachStacktrace: true,
	}, log)
}

func initClient(opts sentry.ClientOptions, log logger.Logger) (func(), error) {
	if err := sentry.Init(opts); err != nil {
		return nil, errors.Newf("initialize sentry: %w", err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	errors.SetReporter(report)
	log.Module("telemetry").Info("error reporting enabled",
		logger.String("environment", opts.Environment))

	return func() {
		errors.SetReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

// reportable filters out user mistakes that say nothing about the program.
func reportable(c errors.Category) bool {
	switch c {
	case errors.CategoryValidation, errors.CategoryNotFound:
		return false
	default:
		return true
	}
}

func report(ee *errors.EnhancedError) {
	if !reportable(ee.GetCategory()) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		sentry.CaptureException(ee)
	})
}
