package matrix

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := openTestStore(t)

	results := sampleResults()
	summary := Summarize(results, 42*time.Second)

	id, err := s.SaveRun(results, summary)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	run, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, summary, run.Summary)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "512mb/startup/baseline", run.Results[0].Key())
}

func TestStore_GetMissingRun(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(uuid.New())
	assert.Error(t, err)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	first, err := s.SaveRun(sampleResults(), Summary{Total: 2, Failed: 1, Passed: 1})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.SaveRun(sampleResults(), Summary{Total: 2, Passed: 2})
	require.NoError(t, err)

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
	assert.Nil(t, runs[0].Results, "listings omit the full rows")
}
