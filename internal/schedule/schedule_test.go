package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/queries/domain"
	"github.com/querypad/querypad-backend/internal/queries/repository"
)

func TestShouldScheduleNext_TTL(t *testing.T) {
	previous := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not yet due", func(t *testing.T) {
		now := previous.Add(2 * time.Minute)
		assert.False(t, ShouldScheduleNext(previous, now, "300"))
	})

	t.Run("due", func(t *testing.T) {
		now := previous.Add(6 * time.Minute)
		assert.True(t, ShouldScheduleNext(previous, now, "300"))
	})
}

func TestShouldScheduleNext_Daily(t *testing.T) {
	t.Run("due the next day", func(t *testing.T) {
		previous := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
		now := time.Date(2026, 8, 2, 13, 1, 0, 0, time.UTC)
		assert.True(t, ShouldScheduleNext(previous, now, "13:00"))
	})

	t.Run("not due the same day", func(t *testing.T) {
		previous := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
		now := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
		assert.False(t, ShouldScheduleNext(previous, now, "13:00"))
	})

	t.Run("23:59 run is not skipped by a sweep just after midnight", func(t *testing.T) {
		// Ran at 23:59, sweeper wakes 00:01 the next day: next run is
		// tonight's 23:59, not tomorrow's.
		previous := time.Date(2026, 8, 1, 23, 59, 30, 0, time.UTC)
		now := time.Date(2026, 8, 2, 0, 1, 0, 0, time.UTC)
		assert.False(t, ShouldScheduleNext(previous, now, "23:59"))

		now = time.Date(2026, 8, 3, 0, 1, 0, 0, time.UTC)
		assert.True(t, ShouldScheduleNext(previous, now, "23:59"))
	})

	t.Run("invalid spec never schedules", func(t *testing.T) {
		previous := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
		now := previous.AddDate(0, 0, 7)
		assert.False(t, ShouldScheduleNext(previous, now, "every day"))
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(""))
	assert.NoError(t, Validate("300"))
	assert.NoError(t, Validate("23:59"))
	assert.Error(t, Validate("0"))
	assert.Error(t, Validate("-60"))
	assert.Error(t, Validate("24:00"))
	assert.Error(t, Validate("12:60"))
	assert.Error(t, Validate("daily"))
}

type fakeSource struct {
	scheduled []repository.ScheduledQuery
}

func (f *fakeSource) Scheduled(context.Context) ([]repository.ScheduledQuery, error) {
	return f.scheduled, nil
}

type captureRecorder struct {
	recorded []events.Event
}

func (c *captureRecorder) Record(_ context.Context, e events.Event) error {
	c.recorded = append(c.recorded, e)
	return nil
}

func TestSweepOnce(t *testing.T) {
	stale := time.Now().Add(-time.Hour)
	fresh := time.Now().Add(-time.Minute)

	source := &fakeSource{scheduled: []repository.ScheduledQuery{
		{Query: domain.Query{ID: 1, Schedule: "300", QueryHash: "aaa"}, RetrievedAt: stale},
		{Query: domain.Query{ID: 2, Schedule: "300", QueryHash: "bbb"}, RetrievedAt: fresh},
		// Same hash as query 1: only one refresh should be enqueued.
		{Query: domain.Query{ID: 3, Schedule: "300", QueryHash: "aaa"}, RetrievedAt: stale},
	}}
	rec := &captureRecorder{}

	n, err := NewSweeper(source, rec).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "refresh", rec.recorded[0].Action)
	assert.Equal(t, "1", rec.recorded[0].ObjectID)
}
