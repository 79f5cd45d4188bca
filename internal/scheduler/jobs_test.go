package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/domain"
)

type fakeDecisionPipeline struct {
	decided []domain.Asset
	failFor domain.Asset
}

func (f *fakeDecisionPipeline) Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error) {
	if asset == f.failFor {
		return nil, errors.New("series unavailable")
	}
	f.decided = append(f.decided, asset)
	return &domain.Decision{Asset: asset}, nil
}

func TestDailyDecisionJob_RunsAllAssets(t *testing.T) {
	p := &fakeDecisionPipeline{}
	job := NewDailyDecisionJob(p, domain.RiskAssets(), zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, domain.RiskAssets(), p.decided)
}

func TestDailyDecisionJob_FailureIsIsolated(t *testing.T) {
	p := &fakeDecisionPipeline{failFor: domain.AssetSPX}
	job := NewDailyDecisionJob(p, domain.RiskAssets(), zerolog.Nop())

	err := job.Run()
	assert.Error(t, err)
	// BTC still ran despite the SPX failure
	assert.Equal(t, []domain.Asset{domain.AssetBTC}, p.decided)
}

type fakeRefresher struct {
	refreshed []domain.Asset
}

func (f *fakeRefresher) Refresh(ctx context.Context, asset domain.Asset) error {
	f.refreshed = append(f.refreshed, asset)
	return nil
}

func TestCalibrationRefreshJob_RunsAllAssets(t *testing.T) {
	r := &fakeRefresher{}
	job := NewCalibrationRefreshJob(r, []domain.Asset{domain.AssetSPX, domain.AssetBTC, domain.AssetDXY}, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Len(t, r.refreshed, 3)
}

func TestForecastTrainingJob_RunsAllAssets(t *testing.T) {
	r := &fakeRefresher{}
	job := NewForecastTrainingJob(r, domain.RiskAssets(), zerolog.Nop())

	assert.Equal(t, "forecast_training", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, domain.RiskAssets(), r.refreshed)
}

func TestCacheSweepJob_Run(t *testing.T) {
	c := cache.New(zerolog.Nop())
	c.Set("decision:2024-06-28", 1, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)

	job := NewCacheSweepJob(c, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Equal(t, 0, c.Len())
}

func newHistoryDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:scheduler_test?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS job_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name    TEXT NOT NULL,
			status      TEXT NOT NULL,
			detail      TEXT,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);
		DELETE FROM job_history;`)
	require.NoError(t, err)
	return db
}

func TestJobHistory_RecordAndRecent(t *testing.T) {
	repo := NewJobHistoryRepository(newHistoryDB(t), zerolog.Nop())

	now := time.Now().UTC()
	require.NoError(t, repo.Record("daily_decision", "ok", "", now.Add(-time.Minute), now))
	require.NoError(t, repo.Record("daily_decision", "error", "series unavailable", now, now.Add(time.Second)))

	runs, err := repo.Recent("daily_decision", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "error", runs[0].Status)
	assert.Equal(t, "series unavailable", runs[0].Detail)
}

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Run() error { j.runs++; return j.err }
func (j *countingJob) Name() string { return "counting" }

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	repo := NewJobHistoryRepository(newHistoryDB(t), zerolog.Nop())
	s := New(repo, zerolog.Nop())

	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	runs, err := repo.Recent("counting", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Status)
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	repo := NewJobHistoryRepository(newHistoryDB(t), zerolog.Nop())
	s := New(repo, zerolog.Nop())

	job := &countingJob{err: errors.New("boom")}
	require.NoError(t, s.RunNow(job))

	runs, err := repo.Recent("counting", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "error", runs[0].Status)
	assert.Equal(t, "boom", runs[0].Detail)
}
