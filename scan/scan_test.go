package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/checkpoint"
	"github.com/cnosuke/imgcheck/config"
	"github.com/cnosuke/imgcheck/report"
	"github.com/cnosuke/imgcheck/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Check.Timeout = 5
	cfg.Check.UserAgent = "imgcheck-test"
	cfg.Check.Method = "head"
	cfg.Check.RangeBytes = 10
	cfg.Check.MaxAttempts = 1
	cfg.Check.MaxRedirects = 5
	cfg.Run.Concurrency = 4
	cfg.Run.Strategy = "streamed"
	cfg.Run.ChunkSize = 50
	cfg.Run.ChunkThreshold = 300
	cfg.Run.ProgressEvery = 1
	cfg.Server.MaxURLs = 10
	return cfg
}

func newImageServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := testConfig()
	cfg.Run.Concurrency = 0
	_, err := NewFromConfig(cfg, nil, nil)
	assert.Error(t, err)
}

func TestScan_WithoutStore(t *testing.T) {
	var hits atomic.Int32
	server := newImageServer(t, &hits)

	s, err := NewFromConfig(testConfig(), nil, nil)
	require.NoError(t, err)

	reqs := []types.CheckRequest{
		types.NewCheckRequest("a", server.URL+"/ok.jpg"),
		types.NewCheckRequest("b", server.URL+"/missing.jpg"),
		types.NewCheckRequest("c", server.URL+"/ok.jpg"),
		types.NewCheckRequest("d", "javascript:alert(1)"),
	}
	var alerts int
	rep, err := s.Scan(context.Background(), reqs, checker.Hooks{
		OnAlert: func(types.CheckResult) { alerts++ },
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.True(t, rep.Complete)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, types.StatusOK, rep.Results[0].Status)
	assert.Equal(t, types.StatusNotFound, rep.Results[1].Status)
	assert.Equal(t, types.StatusInvalidURL, rep.Results[2].Status)
	assert.Equal(t, 2, alerts)
	assert.EqualValues(t, 2, hits.Load())

	err = s.Reset(context.Background(), reqs)
	assert.Error(t, err)
}

func TestScan_ResumeFromStore(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	server := newImageServer(t, &hits)

	store, err := checkpoint.Open(ctx, filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer store.Close()

	s, err := NewFromConfig(testConfig(), nil, store)
	require.NoError(t, err)

	reqs := []types.CheckRequest{
		types.NewCheckRequest("a", server.URL+"/ok.jpg"),
		types.NewCheckRequest("b", server.URL+"/missing.jpg"),
		types.NewCheckRequest("c", server.URL+"/other.jpg"),
	}

	var resultCalls int
	first, err := s.Scan(ctx, reqs, checker.Hooks{
		OnResult: func(int, types.CheckResult) { resultCalls++ },
	})
	require.NoError(t, err)
	assert.True(t, first.Complete)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, 3, resultCalls)

	unique, _ := report.Dedupe(reqs)
	key := checkpoint.ScanKey(unique)
	cursor, err := store.Cursor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, cursor.RunID)
	assert.Equal(t, 3, cursor.NextIndex)
	assert.Equal(t, 3, cursor.Total)

	// everything is already resolved, so nothing is requested again
	second, err := s.Scan(ctx, reqs, checker.Hooks{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Tally, second.Tally)
	assert.NotEqual(t, first.RunID, second.RunID)

	require.NoError(t, s.Reset(ctx, reqs))
	_, err = store.Cursor(ctx, key)
	assert.ErrorIs(t, err, checkpoint.ErrNoCursor)

	third, err := s.Scan(ctx, reqs, checker.Hooks{})
	require.NoError(t, err)
	assert.True(t, third.Complete)
	assert.EqualValues(t, 6, hits.Load())
}

func TestScan_PartialStoreIsCompleted(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	server := newImageServer(t, &hits)

	store, err := checkpoint.Open(ctx, filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer store.Close()

	reqs := []types.CheckRequest{
		types.NewCheckRequest("a", server.URL+"/ok.jpg"),
		types.NewCheckRequest("b", server.URL+"/missing.jpg"),
	}
	unique, _ := report.Dedupe(reqs)
	key := checkpoint.ScanKey(unique)
	require.NoError(t, store.Save(ctx, key, 0, types.CheckResult{
		Identifier: "a", URL: unique[0].URL, Code: 200, Status: types.StatusOK, ContentLength: -1, Attempts: 1,
	}))

	s, err := NewFromConfig(testConfig(), nil, store)
	require.NoError(t, err)

	rep, err := s.Scan(ctx, reqs, checker.Hooks{})
	require.NoError(t, err)
	assert.True(t, rep.Complete)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, types.StatusNotFound, rep.Results[1].Status)

	done, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}
