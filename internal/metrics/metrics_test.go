package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Counts(t *testing.T) {
	tr := NewTracker("run-1")
	tr.IncrementRequests()
	tr.IncrementRequests()
	tr.IncrementRetries()
	tr.IncrementUnavailable("friends")
	tr.AddNodesDiscovered(3)
	tr.IncrementNodesExpanded()
	tr.AddEdgesRecorded(4)
	tr.IncrementCheckpoints()
	tr.RecordFetchTime(20 * time.Millisecond)
	tr.RecordFetchTime(40 * time.Millisecond)

	snap := tr.GetSnapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 2, snap.Requests)
	assert.Equal(t, 1, snap.Retries)
	assert.Equal(t, 1, snap.Unavailable)
	assert.Equal(t, 3, snap.NodesDiscovered)
	assert.Equal(t, 1, snap.NodesExpanded)
	assert.Equal(t, 4, snap.EdgesRecorded)
	assert.Equal(t, 1, snap.Checkpoints)
	assert.Equal(t, int64(30), snap.AvgFetchTimeMs)

	assert.Contains(t, tr.LogProgress(), "3 discovered")
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *Tracker
	tr.IncrementRequests()
	tr.AddNodesDiscovered(2)
	tr.RecordFetchTime(time.Second)
	assert.Equal(t, storage.Metrics{}, tr.GetSnapshot())
	assert.Empty(t, tr.LogProgress())
}

func TestTracker_WriteFiles(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker("run-2")
	tr.IncrementRequests()

	jsonPath := filepath.Join(dir, "metrics.json")
	require.NoError(t, tr.WriteToFile(jsonPath, "completed"))

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var m storage.Metrics
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "completed", m.TerminationReason)
	assert.Equal(t, 1, m.Requests)

	promPath := filepath.Join(dir, "metrics.prom")
	require.NoError(t, tr.WriteTextfile(promPath))
	text, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(text), "weaver_api_requests_total 1"))
}
