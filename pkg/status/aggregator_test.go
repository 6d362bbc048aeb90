package status

import (
	"testing"
	"time"

	"github.com/runwayci/runway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_Empty(t *testing.T) {
	_, ok := Aggregate(nil)
	assert.False(t, ok)

	_, ok = Aggregate([]models.ExecutionStatus{})
	assert.False(t, ok)
}

func TestAggregate_ActivePriority(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.ExecutionStatus
		want     models.ExecutionStatus
	}{
		{
			name:     "waiting dominates everything",
			statuses: []models.ExecutionStatus{models.StatusRunning, models.StatusFailed, models.StatusWaiting},
			want:     models.StatusWaiting,
		},
		{
			name:     "paused dominates pausing and running",
			statuses: []models.ExecutionStatus{models.StatusPausing, models.StatusPaused, models.StatusRunning},
			want:     models.StatusPaused,
		},
		{
			name:     "pausing dominates running",
			statuses: []models.ExecutionStatus{models.StatusRunning, models.StatusPausing},
			want:     models.StatusPausing,
		},
		{
			name:     "running dominates final statuses",
			statuses: []models.ExecutionStatus{models.StatusSuccess, models.StatusFailed, models.StatusRunning},
			want:     models.StatusRunning,
		},
		{
			name:     "non-new active wins over new",
			statuses: []models.ExecutionStatus{models.StatusNew, models.StatusStarting},
			want:     models.StatusStarting,
		},
		{
			name:     "only new active",
			statuses: []models.ExecutionStatus{models.StatusNew, models.StatusSuccess, models.StatusNew},
			want:     models.StatusNew,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Aggregate(tt.statuses)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate_AllFinal(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.ExecutionStatus
		want     models.ExecutionStatus
	}{
		{
			name:     "all success",
			statuses: []models.ExecutionStatus{models.StatusSuccess, models.StatusSuccess},
			want:     models.StatusSuccess,
		},
		{
			name:     "failed dominates success",
			statuses: []models.ExecutionStatus{models.StatusSuccess, models.StatusFailed, models.StatusSuccess},
			want:     models.StatusFailed,
		},
		{
			name:     "error dominates failed",
			statuses: []models.ExecutionStatus{models.StatusFailed, models.StatusError},
			want:     models.StatusError,
		},
		{
			name:     "aborted dominates error",
			statuses: []models.ExecutionStatus{models.StatusError, models.StatusAborted, models.StatusFailed},
			want:     models.StatusAborted,
		},
		{
			name:     "expired dominates aborted",
			statuses: []models.ExecutionStatus{models.StatusAborted, models.StatusExpired},
			want:     models.StatusExpired,
		},
		{
			name:     "rejected dominates expired",
			statuses: []models.ExecutionStatus{models.StatusExpired, models.StatusRejected},
			want:     models.StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Aggregate(tt.statuses)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate_TwoSuccessOneFailed(t *testing.T) {
	got, ok := Aggregate([]models.ExecutionStatus{models.StatusSuccess, models.StatusSuccess, models.StatusFailed})
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, got)
}

func TestAggregateStartTs(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	assert.Nil(t, AggregateStartTs(nil, nil))
	assert.Equal(t, &t1, AggregateStartTs(&t2, nil, &t1, &t3))

	// Associative and order-independent: folding pairwise matches a
	// single pass.
	pairwise := AggregateStartTs(AggregateStartTs(&t3, &t2), &t1)
	direct := AggregateStartTs(&t1, &t2, &t3)
	assert.Equal(t, direct, pairwise)
}

func TestAggregateEndTs(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	assert.Nil(t, AggregateEndTs())
	assert.Equal(t, &t3, AggregateEndTs(&t2, &t3, nil, &t1))

	pairwise := AggregateEndTs(AggregateEndTs(&t1, &t3), &t2)
	direct := AggregateEndTs(&t1, &t2, &t3)
	assert.Equal(t, direct, pairwise)
}

func TestAggregateErrorMessage(t *testing.T) {
	_, ok := AggregateErrorMessage("", "")
	assert.False(t, ok)

	msg, ok := AggregateErrorMessage("", "connection refused", "connection refused")
	require.True(t, ok)
	assert.Equal(t, "connection refused", msg)

	msg, ok = AggregateErrorMessage("connection refused", "timed out")
	require.True(t, ok)
	assert.Equal(t, MultipleErrors, msg)
}
