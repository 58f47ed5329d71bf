package advice

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/stereotype/internal/aspect"
	"github.com/conduit-lang/stereotype/internal/transaction"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func messages(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.All() {
		out = append(out, e.Message)
	}
	return out
}

func authenticate(ctx context.Context, user, password string) (bool, error) {
	if _, ok := transaction.FromContext(ctx); !ok {
		return false, errors.New("no unit of work in context")
	}
	return user == "John" && password == "1234", nil
}

func TestTransactional_CommitScenario(t *testing.T) {
	logger, logs := observed()
	adv := Transactional(transaction.NewFactory(false), logger)

	ok, err := aspect.Wrap(adv, authenticate)(context.Background(), "John", "1234")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"BEGIN TRANSACTION", "COMMIT"}, messages(logs))
	for _, e := range logs.All() {
		assert.Equal(t, zapcore.InfoLevel, e.Level)
	}
}

func TestTransactional_RollbackScenario(t *testing.T) {
	logger, logs := observed()
	adv := Transactional(transaction.NewFactory(false), logger)
	valueErr := errors.New("Mike?")

	_, err := aspect.Invoke(context.Background(), adv, "lookup", func(ctx context.Context) (bool, error) {
		return false, valueErr
	})

	assert.Same(t, valueErr, err)
	assert.Equal(t, []string{"BEGIN TRANSACTION", "ROLLBACK"}, messages(logs))
}

func TestTransactional_UnitOfWorkOutcome(t *testing.T) {
	var units []*transaction.UnitOfWork
	factory := func(ctx context.Context) *transaction.UnitOfWork {
		u := transaction.New(nil, false)
		units = append(units, u)
		return u
	}
	adv := Transactional(factory, nil)

	_, err := aspect.Invoke(context.Background(), adv, "ok", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	_, err = aspect.Invoke(context.Background(), adv, "fails", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	require.Len(t, units, 2)
	assert.True(t, units[0].IsCommitted())
	assert.False(t, units[0].IsRolledBack())
	assert.False(t, units[1].IsCommitted())
	assert.True(t, units[1].IsRolledBack())
	for _, u := range units {
		assert.Equal(t, transaction.StateDisposed, u.State())
	}
}

func TestTransactional_BeginFailureSkipsTarget(t *testing.T) {
	logger, logs := observed()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	adv := Transactional(transaction.NewManager(db, nil).Factory(false), logger)
	called := false

	_, err = aspect.Invoke(context.Background(), adv, "never", func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Empty(t, messages(logs))
}

func TestTransactional_ChainedBeforeFailureRollsBack(t *testing.T) {
	logger, logs := observed()
	var unit *transaction.UnitOfWork
	factory := func(ctx context.Context) *transaction.UnitOfWork {
		unit = transaction.New(nil, false)
		return unit
	}
	denied := errors.New("denied")
	adv := aspect.Chain(
		Transactional(factory, logger),
		aspect.Funcs{OnBefore: func(ctx context.Context, jp *aspect.JoinPoint) error { return denied }},
	)
	called := false

	_, err := aspect.Invoke(context.Background(), adv, "authenticate", func(ctx context.Context) (bool, error) {
		called = true
		return true, nil
	})

	require.ErrorIs(t, err, denied)
	assert.False(t, called)
	assert.Equal(t, []string{"BEGIN TRANSACTION", "ROLLBACK"}, messages(logs))
	require.NotNil(t, unit)
	assert.False(t, unit.IsCommitted())
	assert.True(t, unit.IsRolledBack())
	assert.Equal(t, transaction.StateDisposed, unit.State())
}

func TestTransactional_SQLiteCommitAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE logins (user TEXT NOT NULL)`)
	require.NoError(t, err)

	adv := Transactional(transaction.NewManager(db, nil).Factory(false), nil)
	record := aspect.Func1(adv, "record", func(ctx context.Context, user string) (bool, error) {
		tx, ok := transaction.TxFromContext(ctx)
		if !ok {
			return false, errors.New("no transaction")
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO logins (user) VALUES (?)", user); err != nil {
			return false, err
		}
		if user == "Mike?" {
			return false, errors.New("unknown user")
		}
		return true, nil
	})

	ok, err := record(context.Background(), "John")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = record(context.Background(), "Mike?")
	require.Error(t, err)

	var users []string
	rows, err := db.Query("SELECT user FROM logins")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var u string
		require.NoError(t, rows.Scan(&u))
		users = append(users, u)
	}
	assert.Equal(t, []string{"John"}, users)
}

func TestTransactional_ConcurrentInvocations(t *testing.T) {
	logger, logs := observed()
	adv := Transactional(nil, logger)
	wrapped := aspect.Wrap(adv, authenticate)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			password := "1234"
			if i%2 == 1 {
				password = "nope"
			}
			ok, err := wrapped(context.Background(), "John", password)
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, logs.FilterMessage(MsgBegin).Len())
	assert.Equal(t, 10, logs.FilterMessage(MsgCommit).Len())
	assert.Zero(t, logs.FilterMessage(MsgRollback).Len())
}

func TestTransactional_Async(t *testing.T) {
	logger, logs := observed()
	adv := Transactional(nil, logger)

	auth := aspect.Async2(adv, "authenticate", authenticate)
	ok, err := auth(context.Background(), "John", "1234").Wait()

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"BEGIN TRANSACTION", "COMMIT"}, messages(logs))
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adv := Logging(zap.New(core))

	_, _ = aspect.Invoke(context.Background(), adv, "ok", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	_, _ = aspect.Invoke(context.Background(), adv, "bad", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	assert.Equal(t, []string{"invoking", "returned", "invoking", "failed"}, messages(logs))
	assert.Equal(t, zapcore.WarnLevel, logs.All()[3].Level)
}

func TestTiming(t *testing.T) {
	logger, logs := observed()
	adv := Timing(logger).(*timing)
	clock := time.Unix(0, 0)
	adv.now = func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}

	_, err := aspect.Invoke(context.Background(), adv, "slow", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("invocation finished").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 250*time.Millisecond, entries[0].ContextMap()["duration"])
	assert.Equal(t, false, entries[0].ContextMap()["failed"])
}

func setupTestTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider.Tracer("stereotype-test"), exporter
}

func TestTracing(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	adv := Tracing(tracer)
	boom := errors.New("boom")

	_, err := aspect.Invoke(context.Background(), adv, "ok", func(ctx context.Context) (int, error) {
		_, child := tracer.Start(ctx, "child")
		child.End()
		return 1, nil
	})
	require.NoError(t, err)
	_, err = aspect.Invoke(context.Background(), adv, "bad", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.Same(t, boom, err)

	spans := exporter.GetSpans()
	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "ok")
	require.Contains(t, byName, "bad")
	require.Contains(t, byName, "child")

	assert.Equal(t, codes.Ok, byName["ok"].Status.Code)
	assert.Equal(t, byName["ok"].SpanContext.SpanID(), byName["child"].Parent.SpanID())
	assert.Equal(t, codes.Error, byName["bad"].Status.Code)
	assert.Equal(t, "boom", byName["bad"].Status.Description)
	require.Len(t, byName["bad"].Events, 1)
	assert.Equal(t, "exception", byName["bad"].Events[0].Name)
}

func TestTracing_NilTracerIsNoop(t *testing.T) {
	_, ok := Tracing(nil).(aspect.Base)
	assert.True(t, ok)
}

func TestChain_TransactionalWithTracing(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	logger, logs := observed()
	adv := aspect.Chain(Tracing(tracer), Transactional(nil, logger))

	ok, err := aspect.Wrap(adv, authenticate)(context.Background(), "John", "1234")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"BEGIN TRANSACTION", "COMMIT"}, messages(logs))
	assert.Len(t, exporter.GetSpans(), 1)
}
