package decisionlog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-sh/steward/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emailCtx(target string, ts time.Time) types.DecisionContext {
	return types.NewDecisionContext(types.ContextParams{
		Capability: "connector.email.send_message",
		Target:     target,
		Timestamp:  ts,
	})
}

func TestRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	l, err := Open(path, testLogger())
	require.NoError(t, err)

	now := time.Now().UTC()
	l.Record(emailCtx("bob@client.com", now), types.DecisionApproved, 1200, "looks fine", "")
	l.Record(emailCtx("eve@evil.com", now), types.DecisionDenied, 800, "", "")
	l.Record(emailCtx("bob@client.com", now), types.DecisionApproved, 0, "", "rule-1")
	require.NoError(t, l.Close())

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 1, stats.Denied)
	assert.Equal(t, 1, stats.Auto)
	assert.Equal(t, 1, stats.AutoApproved)

	// A restart must not silently skip pending analysis.
	assert.Equal(t, 3, reopened.CountSinceLastAnalysis())

	recent := reopened.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "rule-1", recent[0].RuleID) // newest first
}

func TestReplaySkipsPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	l, err := Open(path, testLogger())
	require.NoError(t, err)
	l.Record(emailCtx("bob@client.com", time.Now()), types.DecisionApproved, 0, "", "")
	require.NoError(t, l.Close())

	// Simulate a crash mid-write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"dec-truncat`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Stats().Total)
}

func TestQueryFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path, testLogger())
	require.NoError(t, err)
	defer l.Close()

	now := time.Now().UTC()
	l.Record(emailCtx("bob@client.com", now), types.DecisionApproved, 0, "", "")
	l.Record(emailCtx("eve@evil.com", now), types.DecisionDenied, 0, "", "")
	l.Record(types.NewDecisionContext(types.ContextParams{
		Capability: "connector.slack.post",
		Target:     "channel:#ops",
		Timestamp:  now,
	}), types.DecisionApproved, 0, "", "")

	assert.Len(t, l.ByCapability("connector.email.send_message"), 2)
	assert.Len(t, l.ByCapability("connector.slack.post"), 1)
	assert.Len(t, l.ByTargetDomain("client.com"), 1)
	assert.Len(t, l.ByTargetDomain("evil.com"), 1)
	assert.Len(t, l.Window(7), 3)
}

func TestAnalysisCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path, testLogger())
	require.NoError(t, err)
	defer l.Close()

	assert.Zero(t, l.CountSinceLastAnalysis())
	l.Record(emailCtx("bob@client.com", time.Now()), types.DecisionApproved, 0, "", "")
	l.Record(emailCtx("bob@client.com", time.Now()), types.DecisionApproved, 0, "", "")
	assert.Equal(t, 2, l.CountSinceLastAnalysis())

	l.MarkAnalysisComplete()
	assert.Zero(t, l.CountSinceLastAnalysis())
}

func TestConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path, testLogger())
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(emailCtx("bob@client.com", time.Now()), types.DecisionApproved, 0, "", "")
		}()
	}
	wg.Wait()
	assert.Equal(t, n, l.Stats().Total)
	require.NoError(t, l.Close())

	// Every line must have landed intact: no interleaved writes.
	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, n, reopened.Stats().Total)
}

func TestTodayCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path, testLogger())
	require.NoError(t, err)
	defer l.Close()

	now := time.Now().UTC()
	l.Record(emailCtx("bob@client.com", now), types.DecisionApproved, 0, "", "rule-1")
	l.Record(emailCtx("eve@evil.com", now), types.DecisionDenied, 0, "", "rule-2")
	l.Record(emailCtx("bob@client.com", now), types.DecisionApproved, 0, "", "")

	today := l.Today()
	assert.Equal(t, 1, today.AutoApproved)
	assert.Equal(t, 1, today.AutoDenied)
	assert.Equal(t, 1, today.Manual)
}
