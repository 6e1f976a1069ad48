package offline

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/logger"
)

const (
	testScope   = "https://shop.example.com/"
	testVersion = "shoppinglist-v1"
)

var testAssets = []string{"./", "./index.html", "./manifest.webmanifest", "./icons/icon-192.png"}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func testCacheSettings(version string) conf.CacheSettings {
	return conf.CacheSettings{
		Version:       version,
		Assets:        testAssets,
		Fallback:      "./index.html",
		BackendDomain: ".supabase.co",
		Backend:       conf.BackendMemory,
	}
}

func testConfig(t *testing.T, version string) Config {
	t.Helper()
	cfg, err := ConfigFromSettings(testCacheSettings(version), testScope)
	require.NoError(t, err)
	return cfg
}

// setupTestDB opens a private in-memory database for one test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// mockUpstream registers a 200 responder for every test asset.
func mockUpstream() *httpmock.MockTransport {
	mt := httpmock.NewMockTransport()
	for _, p := range []string{"", "index.html", "manifest.webmanifest", "icons/icon-192.png"} {
		mt.RegisterResponder(http.MethodGet, testScope+p,
			httpmock.NewStringResponder(http.StatusOK, "asset:"+p))
	}
	return mt
}

type fixture struct {
	worker    *Worker
	storage   Storage
	transport *httpmock.MockTransport
	metrics   *Metrics
}

func newFixture(t *testing.T, storage Storage) *fixture {
	t.Helper()
	mt := mockUpstream()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	w, err := NewWorker(testConfig(t, testVersion), storage, &http.Client{Transport: mt}, testLogger(), WithMetrics(m))
	require.NoError(t, err)
	return &fixture{worker: w, storage: storage, transport: mt, metrics: m}
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.worker.Install(t.Context()))
	require.NoError(t, f.worker.Activate(t.Context()))
	f.transport.ZeroCallCounters()
}
