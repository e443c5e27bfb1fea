package sentryutil

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	sentrygin "github.com/getsentry/sentry-go/gin"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/util"
)

const errorContextName = "error context"

func ReportRemappedError(ctx context.Context, originalErr error, remappedErr interface{}) {
	hub := SentryHubFromContext(ctx)
	if hub == nil {
		logger.For(ctx).Warnln("could not report error to Sentry because hub is nil")
		return
	}

	// Use a new scope so our error context and tag don't persist beyond this error
	hub.WithScope(func(scope *sentry.Scope) {
		if remappedErr != nil {
			SetErrorContext(scope, true, fmt.Sprintf("%T", remappedErr))
			scope.SetTag("remappedError", "true")
		} else {
			SetErrorContext(scope, false, "")
		}

		hub.CaptureException(originalErr)
	})
}

func ReportError(ctx context.Context, err error) {
	ReportRemappedError(ctx, err, nil)
}

// UpdateErrorFingerprints groups plain errors.New errors by message instead of lumping them together
func UpdateErrorFingerprints(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event == nil || hint == nil || hint.OriginalException == nil {
		return event
	}

	exceptionType := fmt.Sprintf("%T", hint.OriginalException)
	if exceptionType == "*errors.errorString" {
		event.Fingerprint = []string{"{{ default }}", hint.OriginalException.Error()}
	}

	return event
}

func SetErrorContext(scope *sentry.Scope, mapped bool, mappedTo string) {
	scope.SetContext(errorContextName, sentry.Context{
		"mapped":   mapped,
		"mappedTo": mappedTo,
	})
}

func NewSentryHubContext(ctx context.Context, hub *sentry.Hub) context.Context {
	var cpy *sentry.Hub

	if hub != nil {
		cpy = hub.Clone()
	}

	return sentry.SetHubOnContext(ctx, cpy)
}

// SentryHubFromContext gets a Hub from the supplied context, or from an underlying
// gin.Context if one is available.
func SentryHubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}

	// Outside of a request there is no gin.Context to look in
	if _, ok := ctx.(*gin.Context); !ok && ctx.Value(util.GinContextKey) == nil {
		return nil
	}

	if hub := sentrygin.GetHubFromContext(util.GinContextFromContext(ctx)); hub != nil {
		return hub
	}

	return nil
}

type tracingTransport struct {
	http.RoundTripper

	continueOnly bool
}

// NewTracingTransport creates an http transport that will trace requests via Sentry. If continueOnly is true,
// traces will only be generated if they'd contribute to an existing parent trace.
func NewTracingTransport(roundTripper http.RoundTripper, continueOnly bool) *tracingTransport {
	if existingTracer, ok := roundTripper.(*tracingTransport); ok {
		return &tracingTransport{RoundTripper: existingTracer.RoundTripper, continueOnly: continueOnly}
	}

	return &tracingTransport{RoundTripper: roundTripper, continueOnly: continueOnly}
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.continueOnly {
		if transaction := sentry.TransactionFromContext(req.Context()); transaction == nil {
			return t.RoundTripper.RoundTrip(req)
		}
	}

	span := sentry.StartSpan(req.Context(), "http."+strings.ToLower(req.Method))
	span.Description = fmt.Sprintf("HTTP %s %s", req.Method, req.URL.Path)
	defer span.Finish()

	req.Header.Add("sentry-trace", span.TraceID.String())

	response, err := t.RoundTripper.RoundTrip(req)
	if err != nil {
		return response, err
	}

	if span.Data == nil {
		span.Data = make(map[string]interface{})
	}
	span.Data["HTTP Status Code"] = response.StatusCode

	return response, nil
}
