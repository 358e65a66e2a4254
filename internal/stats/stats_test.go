package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lanternlabs/lantern/internal/data"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CountByCamera(ctx context.Context, since time.Time) ([]data.CameraCount, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]data.CameraCount), args.Error(1)
}

func (m *MockRepo) HourlyCounts(ctx context.Context, start, end time.Time) ([]data.HourlyCount, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]data.HourlyCount), args.Error(1)
}

func (m *MockRepo) TopLocations(ctx context.Context, start, end time.Time, n int) ([]data.LocationCount, error) {
	args := m.Called(ctx, start, end, n)
	return args.Get(0).([]data.LocationCount), args.Error(1)
}

func TestDetectionCounts_CachesResult(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := new(MockRepo)
	svc := NewService(repo, rdb, time.UTC, time.Minute)

	want := []data.CameraCount{{CameraID: uuid.New(), Count: 12}}
	repo.On("CountByCamera", mock.Anything, mock.Anything).Return(want, nil).Once()

	got, err := svc.DetectionCounts(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Second call is served from cache; the repo is not consulted again.
	got, err = svc.DetectionCounts(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertNumberOfCalls(t, "CountByCamera", 1)
}

func TestDetectionCounts_FailsOpenWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	repo := new(MockRepo)
	svc := NewService(repo, rdb, time.UTC, time.Minute)

	want := []data.CameraCount{{CameraID: uuid.New(), Count: 3}}
	repo.On("CountByCamera", mock.Anything, mock.Anything).Return(want, nil)

	got, err := svc.DetectionCounts(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = svc.DetectionCounts(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertNumberOfCalls(t, "CountByCamera", 2)
}

func TestHourlyCounts_QueriesLocalDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)

	repo := new(MockRepo)
	svc := NewService(repo, nil, loc, time.Minute)

	day := time.Date(2026, 8, 28, 13, 45, 0, 0, time.UTC)
	wantStart := time.Date(2026, 8, 28, 0, 0, 0, 0, loc)
	wantEnd := wantStart.AddDate(0, 0, 1)

	want := []data.HourlyCount{{Hour: 9, Location: "Ground Floor", Count: 40}}
	repo.On("HourlyCounts", mock.Anything, wantStart, wantEnd).Return(want, nil).Once()

	got, err := svc.HourlyCounts(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestTopLocations_DefaultLimit(t *testing.T) {
	repo := new(MockRepo)
	svc := NewService(repo, nil, time.UTC, time.Minute)

	want := []data.LocationCount{{Location: "main_entrance", Count: 99, AvgConf: 0.91}}
	repo.On("TopLocations", mock.Anything, mock.Anything, mock.Anything, 5).Return(want, nil).Once()

	got, err := svc.TopLocations(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
