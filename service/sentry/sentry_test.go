package sentryutil

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeydub/go-union/service/persist"
)

func captureHub(t *testing.T, captured *[]*sentry.Event) context.Context {
	t.Helper()
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			*captured = append(*captured, event)
			return nil
		},
	})
	require.NoError(t, err)
	return sentry.SetHubOnContext(context.Background(), sentry.NewHub(client, sentry.NewScope()))
}

func TestReportRemappedError(t *testing.T) {
	t.Run("remapped errors carry the mapped type", func(t *testing.T) {
		var captured []*sentry.Event
		ctx := captureHub(t, &captured)

		ReportRemappedError(ctx, errors.New("row missing"), persist.ErrNotFound{Kind: "item", ID: "x"})

		require.Len(t, captured, 1)
		errCtx := captured[0].Contexts[errorContextName]
		assert.Equal(t, true, errCtx["mapped"])
		assert.Equal(t, "persist.ErrNotFound", errCtx["mappedTo"])
		assert.Equal(t, "true", captured[0].Tags["remappedError"])
	})

	t.Run("plain errors are not mapped", func(t *testing.T) {
		var captured []*sentry.Event
		ctx := captureHub(t, &captured)

		ReportError(ctx, errors.New("boom"))

		require.Len(t, captured, 1)
		assert.Equal(t, false, captured[0].Contexts[errorContextName]["mapped"])
	})

	t.Run("no hub is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() { ReportError(context.Background(), errors.New("boom")) })
	})
}

func TestUpdateErrorFingerprints(t *testing.T) {
	err := errors.New("indexer down")
	event := UpdateErrorFingerprints(&sentry.Event{}, &sentry.EventHint{OriginalException: err})
	assert.Equal(t, []string{"{{ default }}", "indexer down"}, event.Fingerprint)

	event = UpdateErrorFingerprints(&sentry.Event{}, &sentry.EventHint{OriginalException: persist.ErrNotFound{Kind: "item", ID: "x"}})
	assert.Empty(t, event.Fingerprint)
}
