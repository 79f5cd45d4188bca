package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFilterAsOf_DailyPricesHaveNoLag(t *testing.T) {
	s := domain.Series{
		ID:        "SPX",
		Frequency: domain.FrequencyDaily,
		Points: []domain.Point{
			{Date: date("2024-06-27"), Value: 5470},
			{Date: date("2024-06-28"), Value: 5460},
			{Date: date("2024-07-01"), Value: 5480},
		},
	}

	filtered, err := FilterAsOf(s, date("2024-06-28"))
	require.NoError(t, err)
	require.Len(t, filtered.Points, 2)
	assert.Equal(t, 5460.0, filtered.Points[1].Value)
}

func TestFilterAsOf_WeeklyFedDataLagsSevenDays(t *testing.T) {
	s := domain.Series{
		ID:        SeriesWALCL,
		Frequency: domain.FrequencyWeekly,
		Points: []domain.Point{
			{Date: date("2024-06-14"), Value: 7300},
			{Date: date("2024-06-21"), Value: 7290},
			{Date: date("2024-06-28"), Value: 7280},
		},
	}

	// At July 1, the June 28 print is not yet published (lag 7 days)
	filtered, err := FilterAsOf(s, date("2024-07-01"))
	require.NoError(t, err)
	require.Len(t, filtered.Points, 2)
	assert.Equal(t, date("2024-06-21"), filtered.Points[1].Date)
}

func TestFilterAsOf_MonthlyCPILagsThirtyDays(t *testing.T) {
	s := domain.Series{
		ID:        SeriesCPI,
		Frequency: domain.FrequencyMonthly,
		Points: []domain.Point{
			{Date: date("2024-05-31"), Value: 3.3},
			{Date: date("2024-06-30"), Value: 3.1},
		},
	}

	filtered, err := FilterAsOf(s, date("2024-07-01"))
	require.NoError(t, err)
	require.Len(t, filtered.Points, 1)
	assert.Equal(t, 3.3, filtered.Points[0].Value)
}

func TestFilterAsOf_NothingSurvives(t *testing.T) {
	s := domain.Series{
		ID: SeriesCPI,
		Points: []domain.Point{
			{Date: date("2024-06-30"), Value: 3.1},
		},
	}

	_, err := FilterAsOf(s, date("2024-07-01"))
	assert.True(t, errors.Is(err, domain.ErrSeriesUnavailable))
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:marketdata_test?mode=memory&cache=shared",
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS series (
			id TEXT PRIMARY KEY,
			frequency TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS series_points (
			series_id TEXT NOT NULL,
			date TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (series_id, date)
		);
		DELETE FROM series_points;
		DELETE FROM series;`)
	require.NoError(t, err)
	return db
}

func TestSeriesRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewSeriesRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertSeries("BTC", domain.FrequencyDaily))
	require.NoError(t, repo.UpsertPoints("BTC", []domain.Point{
		{Date: date("2024-01-02"), Value: 45000},
		{Date: date("2024-01-01"), Value: 44000},
		{Date: date("2024-01-03"), Value: 46000},
	}))

	s, err := repo.LoadSeries("BTC", date("2024-01-01"), date("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyDaily, s.Frequency)
	require.Len(t, s.Points, 2)
	// Dates strictly increasing regardless of insert order
	assert.Equal(t, date("2024-01-01"), s.Points[0].Date)
	assert.Equal(t, date("2024-01-02"), s.Points[1].Date)
}

func TestService_LoadAsOfAppliesFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewSeriesRepository(db, zerolog.Nop())
	svc := NewService(repo)

	require.NoError(t, repo.UpsertSeries(SeriesRRP, domain.FrequencyWeekly))
	require.NoError(t, repo.UpsertPoints(SeriesRRP, []domain.Point{
		{Date: date("2024-06-21"), Value: 400},
		{Date: date("2024-06-28"), Value: 390},
	}))

	s, err := svc.LoadAsOf(SeriesRRP, date("2024-07-01"), 30)
	require.NoError(t, err)
	require.Len(t, s.Points, 1)
	assert.Equal(t, 400.0, s.Points[0].Value)
}
