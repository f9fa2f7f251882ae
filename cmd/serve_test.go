package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfactor/enrich-cli/internal/enrich"
	"github.com/leadfactor/enrich-cli/internal/model"
	"github.com/leadfactor/enrich-cli/internal/store"
)

type fakeRunner struct {
	calls atomic.Int64
	scope atomic.Value
}

func (f *fakeRunner) Run(_ context.Context, scope enrich.Scope) (*model.BatchOutcome, error) {
	f.calls.Add(1)
	f.scope.Store(scope)
	return &model.BatchOutcome{}, nil
}

func newTestRouter(t *testing.T) (http.Handler, store.Store, *fakeRunner) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	runner := &fakeRunner{}
	return buildRouter(context.Background(), st, runner), st, runner
}

func TestBuildRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_TriggerRun(t *testing.T) {
	router, _, runner := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"owner_id": 7, "limit": 10, "force": true})

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, float64(7), resp["owner_id"])

	require.Eventually(t, func() bool {
		return runner.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	scope := runner.scope.Load().(enrich.Scope)
	assert.Equal(t, int64(7), scope.OwnerID)
	assert.Equal(t, 10, scope.Limit)
	assert.True(t, scope.Force)
}

func TestBuildRouter_TriggerRun_MissingOwner(t *testing.T) {
	router, _, runner := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader([]byte(`{"limit":5}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "owner_id is required")
	assert.Equal(t, int64(0), runner.calls.Load())
}

func TestBuildRouter_TriggerRun_BadBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGracefulShutdown_DrainsInFlightRequests(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gracefulShutdown(ctx, srv)
		close(done)
	}()

	reqErr := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
		}
		reqErr <- err
	}()

	<-started
	cancel()
	// Shutdown is underway; the in-flight request must still complete.
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-reqErr)
	assert.ErrorIs(t, <-serveErr, http.ErrServerClosed)
	<-done
}

func TestBuildRouter_ListRuns(t *testing.T) {
	router, st, _ := newTestRouter(t)

	ctx := context.Background()
	run, err := st.CreateRun(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, &model.BatchOutcome{Attempted: 2, Succeeded: 2}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, int64(3), runs[0].OwnerID)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].Outcome.Succeeded)
}
