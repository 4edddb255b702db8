package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_PopulatesFromContext(t *testing.T) {
	ctx := WithRequestID(WithActor(context.Background(), "ops"), "req-1")
	event := NewEvent(ctx, EventTypePlanExecute, ResourceTypePlan, "p1")

	assert.Equal(t, "ops", event.Actor)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "p1", event.ResourceID)

	event.Fail(EventStatusRejected, errors.New("stale"))
	assert.Equal(t, EventStatusRejected, event.Status)
	assert.Equal(t, "stale", event.ErrorMessage)

	assert.Equal(t, "system", ActorFromContext(context.Background()))
}

func TestFileLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"core", "billing"} {
		require.NoError(t, logger.Log(ctx, NewEvent(ctx, EventTypeDependencyAdd, ResourceTypeDependency, id)))
	}

	events, err := logger.Read(ReadFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "core", events[0].ResourceID)
	assert.Equal(t, EventTypeDependencyAdd, events[1].EventType)

	events, err = logger.Read(ReadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, logger.Close())
	assert.ErrorIs(t, logger.Log(ctx, NewEvent(ctx, EventTypeDependencyAdd, ResourceTypeDependency, "x")), ErrLoggerClosed)
}

func TestFileLogger_ReadFilter(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for _, e := range []*Event{
		NewEvent(ctx, EventTypeDependencyAdd, ResourceTypeDependency, "billing->core"),
		NewEvent(ctx, EventTypeVersionPublish, ResourceTypeVersion, "core@1.6.0"),
		NewEvent(ctx, EventTypeModuleCreate, ResourceTypeModule, "core"),
		NewEvent(ctx, EventTypeModuleCreate, ResourceTypeModule, "corelib"),
	} {
		require.NoError(t, logger.Log(ctx, e))
	}

	events, err := logger.Read(ReadFilter{Module: "core"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "core@1.6.0", events[0].ResourceID)
	assert.Equal(t, "core", events[1].ResourceID)

	events, err = logger.Read(ReadFilter{Module: "billing"})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = logger.Read(ReadFilter{EventType: EventTypeModuleCreate})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = logger.Read(ReadFilter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, Rotate: true, MaxSize: 10, MaxFiles: 2})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, NewEvent(ctx, EventTypeVersionPublish, ResourceTypeVersion, "core@1.0.0")))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rotated), 2)
	assert.NotEmpty(t, rotated)

	_, err = os.Stat(filepath.Join(dir, currentLogName))
	assert.NoError(t, err)

	events, err := logger.Read(ReadFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), 5)
}

func TestDBLogger(t *testing.T) {
	t.Run("creates table", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(context.Background(), db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		_, err := NewDBLogger(context.Background(), nil)
		assert.ErrorContains(t, err, "database connection is required")
	})

	t.Run("log sets id", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		logger := &DBLogger{db: db}
		event := NewEvent(context.Background(), EventTypeRollbackExecute, ResourceTypeModule, "core")
		event.Revision = 7

		mock.ExpectQuery("INSERT INTO audit_events").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.Equal(t, int64(42), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("log error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO audit_events").WillReturnError(errors.New("disk full"))

		err = (&DBLogger{db: db}).Log(context.Background(), NewEvent(context.Background(), EventTypePlanCreate, ResourceTypePlan, "p"))
		assert.ErrorContains(t, err, "failed to insert audit event")
	})

	t.Run("search", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		now := time.Now().UTC()
		rows := sqlmock.NewRows([]string{
			"id", "timestamp", "event_type", "status", "actor", "request_id",
			"resource_type", "resource_id", "revision", "reason", "message", "error_message", "metadata", "changes",
		}).AddRow(1, now, "plan.execute", "success", "ops", nil, "plan", "p1", 3, nil, "executed", nil,
			[]byte(`{"source":"core"}`), []byte(`{"after":{"version":"1.6.0"}}`))

		mock.ExpectQuery("SELECT (.+) FROM audit_events").
			WithArgs("plan", "p1", 10).
			WillReturnRows(rows)

		events, err := (&DBLogger{db: db}).Search(context.Background(), SearchFilter{
			ResourceType: ResourceTypePlan,
			ResourceID:   "p1",
			Limit:        10,
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypePlanExecute, events[0].EventType)
		assert.Equal(t, uint64(3), events[0].Revision)
		assert.Equal(t, "core", events[0].Metadata["source"])
		assert.Equal(t, "1.6.0", events[0].Changes.After["version"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cleanup", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("DELETE FROM audit_events").WillReturnResult(sqlmock.NewResult(0, 5))

		n, err := (&DBLogger{db: db}).Cleanup(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})
}

type failingLogger struct{ closed bool }

func (f *failingLogger) Log(ctx context.Context, event *Event) error { return errors.New("boom") }
func (f *failingLogger) Close() error                                 { f.closed = true; return nil }

func TestMultiLogger_ContinuesPastFailure(t *testing.T) {
	file, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	failing := &failingLogger{}

	multi := NewMultiLogger(failing, file)
	ctx := context.Background()
	err = multi.Log(ctx, NewEvent(ctx, EventTypeModuleCreate, ResourceTypeModule, "core"))
	assert.ErrorContains(t, err, "boom")

	events, err := file.Read(ReadFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)
}
