package discrepancy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/cidbench/internal/probe"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"), "file must be newline terminated")
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestOpenWritesHeaderAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lassie_discrepancies.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale\nrows\n"), 0o644))

	l, err := Open(path, HeaderFetch)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.Equal(t, []string{"CID"}, readLines(t, path))
	assert.Equal(t, 0, l.Written())
}

func TestConcurrentAppendsAreWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.csv")
	l, err := Open(path, HeaderProviders, WithBuffer(4))
	require.NoError(t, err)

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec := Record{
					Identifier: fmt.Sprintf("cid-%d-%d", w, i),
					Providers:  []string{fmt.Sprintf("peer-%d", w), "peer-shared"},
				}
				assert.NoError(t, l.Append(rec))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1+workers*perWorker)
	assert.Equal(t, "CID,PeerIDs", lines[0])
	seen := make(map[string]bool)
	for _, line := range lines[1:] {
		var w, i int
		_, err := fmt.Sscanf(line, "cid-%d-%d,", &w, &i)
		require.NoError(t, err, "corrupt line %q", line)
		assert.Equal(t, fmt.Sprintf(`cid-%d-%d,"peer-%d,peer-shared"`, w, i, w), line)
		seen[line] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, l.Written())
}

func TestAppendAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "e.csv"), HeaderFetch)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Append(Record{Identifier: "x"}), ErrClosed)
}

func TestOpenUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(filepath.Join(blocker, "evidence.csv"), HeaderFetch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), blocker)
}

func TestRecordLine(t *testing.T) {
	assert.Equal(t, "bafy/x", Record{Identifier: "bafy/x"}.Line())
	assert.Equal(t, `bafy,"p1,p2"`, Record{Identifier: "bafy", Providers: []string{"p1", "p2"}}.Line())
}

func outcome(configured, ok bool, providers ...string) probe.Outcome {
	return probe.Outcome{Skipped: !configured, Succeeded: ok, Providers: providers}
}

func TestTriggersOnSyntheticSequence(t *testing.T) {
	type pair struct {
		id          string
		direct      probe.Outcome
		counterpart probe.Outcome
	}
	seq := []pair{
		{"c1", outcome(true, true, "p1"), outcome(true, false)},       // fires
		{"c2", outcome(true, true, "p1"), outcome(true, true)},        // both ok
		{"c3", outcome(true, false), outcome(true, false)},            // both failed
		{"c4", outcome(true, false), outcome(true, true)},             // reverse asymmetry
		{"c5", outcome(false, false), outcome(true, false)},           // direct skipped
		{"c6", outcome(true, true, "p1"), outcome(false, false)},      // counterpart skipped
		{"c7", outcome(true, true), outcome(true, false)},             // fires for fetch only
		{"c8", outcome(true, true, "p2", "p3"), outcome(true, false)}, // fires
	}

	dir := t.TempDir()
	fetchLog, err := Open(filepath.Join(dir, "fetch.csv"), HeaderFetch)
	require.NoError(t, err)
	provLog, err := Open(filepath.Join(dir, "providers.csv"), HeaderProviders)
	require.NoError(t, err)

	for _, p := range seq {
		_, err := fetchLog.Check(FetchTrigger, p.id, p.direct, p.counterpart)
		require.NoError(t, err)
		_, err = provLog.Check(ProviderTrigger, p.id, p.direct, p.counterpart)
		require.NoError(t, err)
	}
	require.NoError(t, fetchLog.Close())
	require.NoError(t, provLog.Close())

	assert.Equal(t, []string{"CID", "c1", "c7", "c8"}, readLines(t, filepath.Join(dir, "fetch.csv")))
	assert.Equal(t, []string{"CID,PeerIDs", `c1,"p1"`, `c8,"p2,p3"`}, readLines(t, filepath.Join(dir, "providers.csv")))
}

func TestCheckOnNilLogger(t *testing.T) {
	var l *Logger
	fired, err := l.Check(FetchTrigger, "c1", outcome(true, true), outcome(true, false))
	assert.False(t, fired)
	assert.NoError(t, err)
}
