package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()
	j := store.Create("deploy my app", "https://github.com/x/y")

	require.NotEmpty(t, j.ID)
	assert.Equal(t, StatusQueued, j.Status)

	snap, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, snap.ID)
	assert.Equal(t, "deploy my app", snap.Description)
	assert.Equal(t, "https://github.com/x/y", snap.RepoURL)
	assert.Empty(t, snap.Workdir)
	assert.Nil(t, snap.StartedAt)
}

func TestStore_GetUnknown(t *testing.T) {
	store := NewStore()
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListKeepsSubmissionOrderWithoutLogs(t *testing.T) {
	store := NewStore()
	first := store.Create("a", "https://github.com/x/a")
	second := store.Create("b", "https://github.com/x/b")
	first.Logs.Info("hello")

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Nil(t, list[0].Logs)
	assert.Equal(t, 1, list[0].LogCount)
}

func TestStore_LifecycleTransitions(t *testing.T) {
	store := NewStore()
	j := store.Create("a", "https://github.com/x/a")

	claimed, err := store.Claim(j.ID, "/data/autodeploy/"+j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
	assert.Equal(t, "/data/autodeploy/"+j.ID, claimed.Workdir)

	// A second claim must lose: one slot owns the job.
	_, err = store.Claim(j.ID, "/elsewhere")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, store.Complete(j.ID, "http://1.2.3.4:8080"))

	snap, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "http://1.2.3.4:8080", snap.Result)
	assert.NotNil(t, snap.FinishedAt)

	// Terminal states are final.
	assert.ErrorIs(t, store.Complete(j.ID, "again"), ErrInvalidTransition)
	assert.ErrorIs(t, store.Fail(j.ID, StageClone, "late"), ErrInvalidTransition)
}

func TestStore_FailRecordsStageAndReason(t *testing.T) {
	store := NewStore()
	j := store.Create("a", "https://github.com/x/a")

	// Completing a queued job skips a state and must be rejected.
	assert.ErrorIs(t, store.Complete(j.ID, "r"), ErrInvalidTransition)

	_, err := store.Claim(j.ID, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Fail(j.ID, StageAnalyze, "repository is not HTTP-accessible"))

	snap, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, string(StageAnalyze), snap.FailedStage)
	assert.Contains(t, snap.Result, "not HTTP-accessible")
}

func TestStore_CountByStatus(t *testing.T) {
	store := NewStore()
	a := store.Create("a", "https://github.com/x/a")
	store.Create("b", "https://github.com/x/b")

	_, err := store.Claim(a.ID, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, store.CountByStatus(StatusRunning))
	assert.Equal(t, 1, store.CountByStatus(StatusQueued))
	assert.Equal(t, 0, store.CountByStatus(StatusFailed))
}

func TestJob_ShortID(t *testing.T) {
	j := &Job{ID: "123e4567-e89b-12d3-a456-426614174000"}
	assert.Equal(t, "123e4567", j.ShortID())

	j = &Job{ID: "short"}
	assert.Equal(t, "short", j.ShortID())
}
