package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.WithField("module", "core").WithError(errors.New("boom")).Warn("commit rejected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "commit rejected", entry["msg"])
	assert.Equal(t, "core", entry["module"])
	assert.Equal(t, "boom", entry["error"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-9")

	FromContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-9", entry["request_id"])
}

func TestMetrics_RecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOperation(context.Background(), "execute_plan", OutcomeSuccess, 10*time.Millisecond)
	m.RecordOperation(context.Background(), "execute_plan", OutcomeStale, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("execute_plan", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleCommitsTotal))

	m.RecordGraph(3, 4, map[[2]string]int{{"circular", "error"}: 2})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GraphModules))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConflictsCurrent.WithLabelValues("circular", "error")))

	m.RecordPlanTransition("pending", "approved")
	m.RecordRollbackVerdict(false)
	m.RecordPointsExpired(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbackVerdictsTotal.WithLabelValues("false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RollbackPointsExpired))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordOperation(context.Background(), "x", OutcomeError, 0)
		nilMetrics.RecordPlanTransition("a", "b")
	})
}

func TestMetrics_MirrorsToOTel(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	otelMetrics, err := NewOTelMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry()).WithOTel(otelMetrics)
	m.RecordOperation(context.Background(), "resolve", OutcomeSuccess, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make([]string, 0)
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		names = append(names, metric.Name)
	}
	assert.ElementsMatch(t, []string{"modgraph.engine.operations", "modgraph.engine.duration"}, names)
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/plans/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/plans/{id}", "404")))

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "modgraph_http_requests_total")
}

func TestHealthChecker(t *testing.T) {
	t.Run("healthy with database and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker("test")
		checker.RegisterDatabase("database", db)
		checker.RegisterRedis("redis", client)

		status := checker.Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Len(t, status.Dependencies, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker("test")
		checker.RegisterRedis("redis", client)

		status := checker.Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("critical failure answers 503", func(t *testing.T) {
		checker := NewHealthChecker("test")
		checker.Register("store", true, func(ctx context.Context) error { return errors.New("down") })

		router := mux.NewRouter()
		RegisterHealthRoutes(router, checker)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestShutdownManager_RunsCleanupsInReverse(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var order []int
	sm.Register(func(ctx context.Context) error { order = append(order, 1); return nil })
	sm.Register(func(ctx context.Context) error { order = append(order, 2); return errors.New("flush failed") })

	err := sm.Shutdown()
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, []int{2, 1}, order)
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("boom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestOTelProviders_NilShutdown(t *testing.T) {
	var p *OTelProviders
	assert.NoError(t, p.Shutdown(context.Background()))

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NopLogger())
	require.NoError(t, err)
	assert.Nil(t, providers)
}
