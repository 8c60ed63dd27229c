package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeriveOverallStatus(t *testing.T) {
	row := func(status ProgressStatus, retries int) Progress {
		p := NewProgress(uuid.New(), uuid.New())
		p.Status = status
		p.RetryCount = retries
		return *p
	}

	tests := []struct {
		name     string
		rows     []Progress
		expected OverallStatus
	}{
		{"no rows", nil, OverallNotStarted},
		{"all pending", []Progress{row(StatusPending, 0), row(StatusPending, 0)}, OverallInProgress},
		{"one running", []Progress{row(StatusCompleted, 0), row(StatusInProgress, 0)}, OverallInProgress},
		{"all completed", []Progress{row(StatusCompleted, 0), row(StatusCompleted, 2)}, OverallCompleted},
		{"failed with budget left", []Progress{row(StatusCompleted, 0), row(StatusFailed, 1)}, OverallInProgress},
		{"failed with budget spent", []Progress{row(StatusCompleted, 0), row(StatusFailed, 3)}, OverallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveOverallStatus(tt.rows, 3))
		})
	}
}

func TestProgressCanRetry(t *testing.T) {
	p := NewProgress(uuid.New(), uuid.New())
	assert.True(t, p.CanRetry(3))

	p.RetryCount = 3
	assert.False(t, p.CanRetry(3))
	assert.False(t, p.CanRetry(0))
}

func TestProgressIsFinished(t *testing.T) {
	for status, want := range map[ProgressStatus]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusFailed:     false,
		StatusCompleted:  true,
	} {
		p := NewProgress(uuid.New(), uuid.New())
		p.Status = status
		assert.Equal(t, want, p.IsFinished(), string(status))
	}
}

func TestFindingStatusCanMoveTo(t *testing.T) {
	assert.True(t, FindingPending.CanMoveTo(FindingResolved))
	assert.True(t, FindingPending.CanMoveTo(FindingIrrelevant))
	assert.False(t, FindingPending.CanMoveTo(FindingPending))
	assert.False(t, FindingResolved.CanMoveTo(FindingIrrelevant))
	assert.False(t, FindingIrrelevant.CanMoveTo(FindingResolved))
}

func TestResultKindValid(t *testing.T) {
	assert.True(t, ResultMacroAnalysis.Valid())
	assert.True(t, ResultGeneric.Valid())
	assert.False(t, ResultKind("horoscope").Valid())
}
