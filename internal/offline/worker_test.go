package offline

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shoppinglist/internal/errors"
)

func TestNewWorker_RequiresScope(t *testing.T) {
	t.Parallel()

	_, err := NewWorker(Config{Version: testVersion}, NewMemoryStorage(), http.DefaultClient, testLogger())
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestConfigFromSettings_RejectsRelativeScope(t *testing.T) {
	t.Parallel()

	_, err := ConfigFromSettings(testCacheSettings(testVersion), "/relative/")
	require.ErrorIs(t, err, ErrInvalidScope)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
}

func TestNewWorker_ScopeWithoutTrailingSlash(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFromSettings(testCacheSettings(testVersion), "https://shop.example.com/app")
	require.NoError(t, err)
	w, err := NewWorker(cfg, NewMemoryStorage(), http.DefaultClient, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/app/index.html", w.fallback)
	assert.Equal(t, StateNew, w.State())
}

func TestWorker_Install(t *testing.T) {
	t.Parallel()

	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, factory(t))
			ctx := t.Context()

			require.NoError(t, f.worker.Install(ctx))
			assert.Equal(t, StateInstalled, f.worker.State())
			assert.Equal(t, len(testAssets), f.transport.GetTotalCallCount())

			keys, err := f.storage.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{testVersion}, keys)

			e, ok, err := f.storage.Match(ctx, testScope+"index.html")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "asset:index.html", string(e.Body))
			assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.installs.WithLabelValues("success")), 0)
		})
	}
}

func TestWorker_InstallIsAllOrNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{name: "non-2xx asset", responder: httpmock.NewStringResponder(http.StatusNotFound, "gone")},
		{name: "network error", responder: httpmock.NewErrorResponder(errors.NewStd("connection refused"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, NewMemoryStorage())
			f.transport.RegisterResponder(http.MethodGet, testScope+"manifest.webmanifest", tt.responder)

			err := f.worker.Install(t.Context())
			require.Error(t, err)
			assert.Equal(t, StateRedundant, f.worker.State())
			assert.Equal(t, errors.CategoryCache, errors.CategoryOf(err))

			keys, err := f.storage.Keys(t.Context())
			require.NoError(t, err)
			assert.Empty(t, keys, "a failed install must not create the store")
			assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.installs.WithLabelValues("failure")), 0)
		})
	}
}

func TestWorker_InstallStatusError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryStorage())
	f.transport.RegisterResponder(http.MethodGet, testScope+"index.html",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	err := f.worker.Install(t.Context())
	require.ErrorIs(t, err, ErrAssetStatus)
}

func TestWorker_ActivateRequiresInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryStorage())
	err := f.worker.Activate(t.Context())
	require.ErrorIs(t, err, ErrNotInstalled)
	assert.Equal(t, StateNew, f.worker.State())
}

func TestWorker_ActivateEvictsStaleStores(t *testing.T) {
	t.Parallel()

	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			storage := factory(t)
			ctx := t.Context()

			for _, stale := range []string{"shoppinglist-v0", "other-app"} {
				st, err := storage.Open(ctx, stale)
				require.NoError(t, err)
				require.NoError(t, st.Put(ctx, testEntry(testScope+"index.html", stale)))
			}

			f := newFixture(t, storage)
			require.NoError(t, f.worker.Install(ctx))
			require.NoError(t, f.worker.Activate(ctx))
			assert.Equal(t, StateActivated, f.worker.State())

			keys, err := storage.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{testVersion}, keys)
			assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.evicted), 0)

			e, ok, err := storage.Match(ctx, testScope+"index.html")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "asset:index.html", string(e.Body))
		})
	}
}

func TestWorker_StartRetriesFailedInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryStorage())
	var attempts atomic.Int32
	f.transport.RegisterResponder(http.MethodGet, testScope+"index.html",
		func(req *http.Request) (*http.Response, error) {
			if attempts.Add(1) == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "warming up"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "asset:index.html"), nil
		})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, f.worker.Start(ctx, 10*time.Millisecond))
	assert.Equal(t, StateActivated, f.worker.State())
	assert.Equal(t, int32(2), attempts.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.installs.WithLabelValues("failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.installs.WithLabelValues("success")), 0)
}

func TestWorker_StartStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryStorage())
	f.transport.RegisterResponder(http.MethodGet, testScope+"index.html",
		httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := f.worker.Start(ctx, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRedundant, f.worker.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "installing", StateInstalling.String())
	assert.Equal(t, "activated", StateActivated.String())
	assert.Equal(t, "redundant", StateRedundant.String())
	assert.Equal(t, "unknown", State(42).String())
}
