package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
)

type failingCheckins struct{}

func (failingCheckins) ActiveEpisode(context.Context) (bool, error) {
	return false, errors.New("episodes unavailable")
}

func (failingCheckins) EpisodeOn(context.Context, model.Date) (bool, error) {
	return false, nil
}

func (failingCheckins) StatusLogged(context.Context, model.Date) (bool, error) {
	return false, nil
}

func TestScheduleCheckins(t *testing.T) {
	f := newFixture(t)

	report := f.engine.ScheduleCheckins(f.ctx)
	assert.Equal(t, 3, report.Scheduled)

	alerts := f.scheduled()
	require.Len(t, alerts, 3)
	for i, a := range alerts {
		assert.Equal(t, "Daily check-in", a.Content.Title)
		assert.True(t, at(today.AddDays(i), "20:00").Equal(a.Trigger))
	}

	m, err := f.store.GetCheckin(f.ctx, today)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.SourceDailyCheckin, m.SourceType)
	assert.Nil(t, m.MedicationID)

	again := f.engine.ScheduleCheckins(f.ctx)
	assert.Zero(t, again.Scheduled)
	assert.Equal(t, 3, again.Skipped)
}

func TestScheduleCheckins_SkipsLoggedAndPast(t *testing.T) {
	f := newFixture(t)
	f.meds.SetStatusLogged(today.AddDays(1), true)
	f.clock.Set(at(today, "21:00"))

	report := f.engine.ScheduleCheckins(f.ctx)
	assert.Equal(t, 1, report.Scheduled)
	assert.Equal(t, 2, report.Skipped)
}

func TestScheduleCheckins_Disabled(t *testing.T) {
	f := newFixture(t)
	e := New(f.store, f.notifier, f.meds, WithClock(f.clock), WithLocation(time.UTC))

	assert.Equal(t, ScheduleReport{}, e.ScheduleCheckins(f.ctx))
	assert.Equal(t, ScheduleReport{}, e.TopUpCheckins(f.ctx))
	assert.Empty(t, f.scheduled())
}

func TestTopUpCheckins(t *testing.T) {
	f := newFixture(t)
	f.engine.ScheduleCheckins(f.ctx)

	assert.Equal(t, ScheduleReport{}, f.engine.TopUpCheckins(f.ctx), "window full")

	f.clock.Advance(24 * time.Hour)
	report := f.engine.TopUpCheckins(f.ctx)
	assert.Equal(t, 1, report.Scheduled)
	assert.Equal(t, 2, report.Skipped)

	m, err := f.store.GetCheckin(f.ctx, today.AddDays(3))
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestShouldPresentCheckin(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		present bool
		reason  string
	}{
		{"nothing logged", func(*fixture) {}, true, "no suppression condition"},
		{"active episode", func(f *fixture) { f.meds.SetActiveEpisode(true) }, false, "episode active"},
		{"episode on day", func(f *fixture) { f.meds.SetEpisode(today, true) }, false, "episode recorded for day"},
		{"episode other day", func(f *fixture) { f.meds.SetEpisode(today.AddDays(-1), true) }, true, "no suppression condition"},
		{"status logged", func(f *fixture) { f.meds.SetStatusLogged(today, true) }, false, "status already logged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			got := f.engine.ShouldPresentCheckin(f.ctx, today)
			assert.Equal(t, CheckinDecision{Present: tt.present, Reason: tt.reason}, got)
		})
	}
}

func TestShouldPresentCheckin_FailsOpen(t *testing.T) {
	f := newFixture(t)

	e := New(f.store, f.notifier, f.meds, WithCheckins(failingCheckins{}, DefaultCheckinOptions))
	assert.Equal(t, CheckinDecision{Present: true, Reason: "evaluation failed"}, e.ShouldPresentCheckin(f.ctx, today))

	bare := New(f.store, f.notifier, f.meds)
	assert.Equal(t, CheckinDecision{Present: true, Reason: "no check-in source"}, bare.ShouldPresentCheckin(f.ctx, today))
}

func TestOnCheckinStatusChanged_DismissesPresented(t *testing.T) {
	f := newFixture(t)
	f.engine.ScheduleCheckins(f.ctx)
	f.clock.Set(at(today, "20:05"))
	require.Len(t, f.presented(), 1)

	f.meds.SetStatusLogged(today, true)
	report := f.engine.OnCheckinStatusChanged(f.ctx, today)
	assert.Equal(t, 1, report.Dismissed)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Errors)
	assert.Zero(t, report.TopUp.Scheduled)

	assert.Empty(t, f.presented())
	m, err := f.store.GetCheckin(f.ctx, today)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestOnCheckinStatusChanged_CancelsPending(t *testing.T) {
	f := newFixture(t)
	f.engine.ScheduleCheckins(f.ctx)
	tomorrow := today.AddDays(1)

	f.meds.SetStatusLogged(tomorrow, true)
	report := f.engine.OnCheckinStatusChanged(f.ctx, tomorrow)
	assert.Zero(t, report.Dismissed)
	assert.True(t, report.Cancelled)

	for _, a := range f.scheduled() {
		assert.NotEqual(t, tomorrow, a.Content.Payload.Date)
	}
	assert.Len(t, f.scheduled(), 2)
}
