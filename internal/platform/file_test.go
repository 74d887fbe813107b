package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
)

func TestFileQueue_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "queue.yaml")
	clock := &stubClock{now: base}

	q1, err := OpenFileQueue(path, WithClock(clock), WithIDFunc(seqIDs()))
	require.NoError(t, err)

	content := model.Content{
		Title:    "Time for Aspirin",
		Category: model.CategoryReminder,
		Payload: model.Payload{
			Type:          model.TypeReminder,
			Source:        model.SourceMedication,
			MedicationIDs: []string{"med-a"},
			ScheduleIDs:   []string{"sched-a"},
			Date:          "2026-10-16",
		},
	}
	id, err := q1.Schedule(ctx, content, base.Add(time.Hour))
	require.NoError(t, err)

	q2, err := OpenFileQueue(path, WithClock(clock))
	require.NoError(t, err)

	got, err := q2.Scheduled(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, content, got[0].Content)
	assert.True(t, got[0].Trigger.Equal(base.Add(time.Hour)))

	require.NoError(t, q2.Cancel(ctx, id))

	q3, err := OpenFileQueue(path, WithClock(clock))
	require.NoError(t, err)
	got, err = q3.Scheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileQueue_DeliveryIsPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.yaml")
	clock := &stubClock{now: base}

	q1, err := OpenFileQueue(path, WithClock(clock), WithIDFunc(seqIDs()))
	require.NoError(t, err)
	id, err := q1.Schedule(ctx, model.Content{Title: "x"}, base.Add(time.Minute))
	require.NoError(t, err)

	clock.now = base.Add(time.Hour)
	_, err = q1.Presented(ctx)
	require.NoError(t, err)

	q2, err := OpenFileQueue(path, WithClock(clock))
	require.NoError(t, err)
	presented, err := q2.Presented(ctx)
	require.NoError(t, err)
	require.Len(t, presented, 1)
	assert.Equal(t, id, presented[0].ID)

	require.NoError(t, q2.Dismiss(ctx, id))
	q3, err := OpenFileQueue(path, WithClock(clock))
	require.NoError(t, err)
	presented, err = q3.Presented(ctx)
	require.NoError(t, err)
	assert.Empty(t, presented)
}

func TestOpenFileQueue_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yaml")
	require.NoError(t, writeFile(path, "scheduled: [unterminated"))

	_, err := OpenFileQueue(path)
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
