package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/and161185/biasmeter/internal/utils"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestBootstrap(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS bias_samples")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Bootstrap(context.Background()))
}

func TestSaveSample(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(insertSample)).
		WithArgs("s1", ts, 72.5, 40.0, 38.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveSample(context.Background(), "s1", model.Sample{Timestamp: ts, Value: 72.5, MaleRate: 40, FemaleRate: 38})
	require.NoError(t, err)
}

func TestSaveSample_RetriesConnectionErrors(t *testing.T) {
	saved := utils.RetryDelays
	utils.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { utils.RetryDelays = saved })

	store, mock := newMock(t)
	lost := &pgconn.PgError{Code: pgerrcode.ConnectionFailure}

	mock.ExpectExec(regexp.QuoteMeta(insertSample)).WillReturnError(lost)
	mock.ExpectExec(regexp.QuoteMeta(insertSample)).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveSample(context.Background(), "s1", model.Sample{Timestamp: time.Now(), Value: 1}))
}

func TestSaveAlert_PermanentError(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(insertAlert)).
		WithArgs("s1", ts, "CRITICAL", "Fairness score dropped to 58.0", "high").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})

	err := store.SaveAlert(context.Background(), "s1", model.AlertEvent{
		Title: "CRITICAL", Message: "Fairness score dropped to 58.0", Severity: model.SeverityHigh, Timestamp: ts,
	})
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	require.Equal(t, pgerrcode.UndefinedTable, pgErr.Code)
}

func TestSamples_OldestFirst(t *testing.T) {
	store, mock := newMock(t)
	t1 := time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC)
	t0 := t1.Add(-2 * time.Second)

	rows := sqlmock.NewRows([]string{"ts", "value", "male_rate", "female_rate"}).
		AddRow(t1, 70.0, 0.0, 0.0).
		AddRow(t0, 80.0, 0.0, 0.0)
	mock.ExpectQuery(regexp.QuoteMeta(selectSample)).WithArgs("s1", 2).WillReturnRows(rows)

	got, err := store.Samples(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Equal(t, []model.Sample{{Timestamp: t0, Value: 80}, {Timestamp: t1, Value: 70}}, got)
}

func TestAlerts(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"ts", "title", "message", "severity"}).
		AddRow(ts, "WARNING", "Bias levels elevated", "medium")
	mock.ExpectQuery(regexp.QuoteMeta(selectAlert)).WithArgs("s1", 5).WillReturnRows(rows)

	got, err := store.Alerts(context.Background(), "s1", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.SeverityMedium, got[0].Severity)
	require.Equal(t, "WARNING", got[0].Title)
}

func TestSamples_InvalidLimitAndQueryError(t *testing.T) {
	store, mock := newMock(t)

	_, err := store.Samples(context.Background(), "s1", 0)
	require.ErrorIs(t, err, storage.ErrInvalidLimit)

	mock.ExpectQuery(regexp.QuoteMeta(selectSample)).WillReturnError(errors.New("boom"))
	_, err = store.Samples(context.Background(), "s1", 1)
	require.ErrorContains(t, err, "boom")
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	require.NoError(t, New(db).Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
