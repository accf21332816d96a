//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
	"github.com/sells-group/leadscout/internal/store"
)

// fakeRunner emits a fixed event sequence. When block is set it waits for
// the run context to end and reports a stopped run.
type fakeRunner struct {
	events progress.Sink
	block  bool
	leads  []model.Lead
}

func (f *fakeRunner) RunWithID(ctx context.Context, id string, _ model.RunRequest) (*model.RunResult, error) {
	f.events.Emit(progress.Event{Status: progress.StatusStarting, RunID: id, Message: "Starting"})

	if f.block {
		<-ctx.Done()
		f.events.Emit(progress.Event{Status: progress.StatusStopped, RunID: id, Message: "Scraping stopped"})
		return &model.RunResult{RunID: id, State: model.RunStateStopped}, nil
	}

	for i := range f.leads {
		l := f.leads[i]
		l.RunID = id
		f.events.Emit(progress.Event{Status: progress.StatusLeadFound, RunID: id, Lead: &l, Count: l.ViolationsCount()})
	}
	f.events.Emit(progress.Event{Status: progress.StatusCompleted, RunID: id, Message: "Scraping completed!"})

	now := time.Now()
	return &model.RunResult{
		RunID: id,
		State: model.RunStateCompleted,
		Leads: f.leads,
		Stats: model.RunStats{Leads: len(f.leads), StartedAt: now, FinishedAt: now},
	}, nil
}

func newTestServer(t *testing.T, st store.Store, block bool, leads ...model.Lead) (*server, http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	srv := newServer(context.Background(), st, func(events progress.Sink, _ func() int64, _ time.Time) runner {
		return &fakeRunner{events: events, block: block, leads: leads}
	}, serverOptions{
		EventBuffer: 16,
		OutputDir:   dir,
		Formats:     []export.Format{export.FormatJSON},
		Params:      func(p runParams) (model.RunRequest, error) { return p.request(testConfig()) },
	})
	return srv, srv.routes(), dir
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func startRun(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/runs", map[string]any{"regions": []string{"75011"}})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	resp := decode[map[string]string](t, rr)
	require.NotEmpty(t, resp["run_id"])
	assert.Equal(t, "/runs/"+resp["run_id"], rr.Header().Get("Location"))
	return resp["run_id"]
}

func waitStatus(t *testing.T, h http.Handler, id string, want model.RunStatus) runView {
	t.Helper()
	var v runView
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/runs/"+id, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		v = decode[runView](t, rr)
		return v.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return v
}

func TestServer_Health(t *testing.T) {
	_, h, _ := newTestServer(t, nil, false)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestServer_RunLifecycle(t *testing.T) {
	srv, h, dir := newTestServer(t, nil, false, sampleLead())
	id := startRun(t, h)

	v := waitStatus(t, h, id, model.RunStatusComplete)
	srv.wait()
	assert.Equal(t, model.RunStateCompleted, v.State)
	require.NotNil(t, v.Stats)
	assert.Equal(t, 1, v.Stats.Leads)
	assert.Equal(t, []model.Region{{PostalCode: "75011", Country: "France"}}, v.Request.Regions)

	// Final export was written.
	v = decode[runView](t, do(t, h, http.MethodGet, "/runs/"+id, nil))
	require.Len(t, v.Files, 1)
	assert.Equal(t, dir, filepath.Dir(v.Files[0]))
	_, err := os.Stat(v.Files[0])
	assert.NoError(t, err)

	// Events poll from a cursor.
	page := decode[eventsPage](t, do(t, h, http.MethodGet, "/runs/"+id+"/events?since=0", nil))
	require.Len(t, page.Events, 3)
	assert.Equal(t, progress.StatusStarting, page.Events[0].Status)
	assert.Equal(t, progress.StatusLeadFound, page.Events[1].Status)
	assert.Equal(t, progress.StatusCompleted, page.Events[2].Status)
	assert.Equal(t, 3, page.Next)
	assert.True(t, page.Done)

	page = decode[eventsPage](t, do(t, h, http.MethodGet, "/runs/"+id+"/events?since=3", nil))
	assert.Empty(t, page.Events)
	assert.Equal(t, 3, page.Next)

	leads := decode[[]model.Lead](t, do(t, h, http.MethodGet, "/runs/"+id+"/leads", nil))
	require.Len(t, leads, 1)
	assert.Equal(t, "Le Bistrot", leads[0].Business.Name)

	list := decode[[]runView](t, do(t, h, http.MethodGet, "/runs", nil))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	// A finished run cannot be stopped.
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/runs/"+id+"/stop", nil).Code)
}

func TestServer_OneRunAtATime(t *testing.T) {
	srv, h, _ := newTestServer(t, nil, true)
	id := startRun(t, h)

	rr := do(t, h, http.MethodPost, "/runs", map[string]any{"regions": []string{"92100"}})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already in progress")

	v := decode[runView](t, do(t, h, http.MethodGet, "/runs/"+id, nil))
	assert.Equal(t, model.RunStatusRunning, v.Status)

	rr = do(t, h, http.MethodPost, "/runs/"+id+"/stop", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	v = waitStatus(t, h, id, model.RunStatusStopped)
	srv.wait()
	assert.Empty(t, v.Files)

	// The slot is free again.
	next := startRun(t, h)
	assert.NotEqual(t, id, next)
	do(t, h, http.MethodPost, "/runs/"+next+"/stop", nil)
	srv.wait()
}

func TestServer_BadRequests(t *testing.T) {
	_, h, _ := newTestServer(t, nil, false)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/runs", map[string]any{"regions": []string{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "at least one region")

	rr = do(t, h, http.MethodPost, "/runs", map[string]any{"regions": []string{"75011"}, "min_rating": 4.5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_UnknownRun(t *testing.T) {
	_, h, _ := newTestServer(t, nil, false)

	for _, path := range []string{"/runs/nope", "/runs/nope/events", "/runs/nope/leads"} {
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, path, nil).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/runs/nope/stop", nil).Code)
}

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leadscout.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestServer_StoredRuns(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

	req := model.RunRequest{Regions: []model.Region{{PostalCode: "75011", Country: "France"}}}
	_, err := st.CreateRun(ctx, "stored-1", req)
	require.NoError(t, err)
	lead := sampleLead()
	lead.RunID = "stored-1"
	require.NoError(t, st.SaveLead(ctx, lead))
	require.NoError(t, st.FinishRun(ctx, "stored-1", model.RunStatusComplete, model.RunStats{Leads: 1}, ""))

	_, h, _ := newTestServer(t, st, false)

	v := decode[runView](t, do(t, h, http.MethodGet, "/runs/stored-1", nil))
	assert.Equal(t, model.RunStatusComplete, v.Status)

	leads := decode[[]model.Lead](t, do(t, h, http.MethodGet, "/runs/stored-1/leads", nil))
	require.Len(t, leads, 1)
	assert.Equal(t, "Le Bistrot", leads[0].Business.Name)

	list := decode[[]runView](t, do(t, h, http.MethodGet, "/runs?status=complete", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "stored-1", list[0].ID)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/missing/leads", nil).Code)
}

func TestRecoverOrphans(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

	_, err := st.CreateRun(ctx, "orphan", model.RunRequest{})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "done", model.RunRequest{})
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, "done", model.RunStatusComplete, model.RunStats{}, ""))

	recoverOrphans(ctx, st)

	run, err := st.GetRun(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)

	run, err = st.GetRun(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, page(items, 0, 0))
	assert.Equal(t, []int{3, 4}, page(items, 2, 2))
	assert.Empty(t, page(items, 2, 10))
	assert.Equal(t, []int{1, 2}, page(items, 2, -4))
}

// burstRunner floods the event queue and never emits a terminal event, as
// happens when the bounded queue drops it.
type burstRunner struct {
	events progress.Sink
	n      int
}

func (b *burstRunner) RunWithID(_ context.Context, id string, _ model.RunRequest) (*model.RunResult, error) {
	for i := 0; i < b.n; i++ {
		b.events.Emit(progress.Event{Status: progress.StatusInfo, RunID: id, Count: i})
	}
	return &model.RunResult{RunID: id, State: model.RunStateCompleted}, nil
}

func TestServer_EventsDoneWithoutTerminalEvent(t *testing.T) {
	srv := newServer(context.Background(), nil, func(events progress.Sink, _ func() int64, _ time.Time) runner {
		return &burstRunner{events: events, n: 5000}
	}, serverOptions{
		EventBuffer: 1,
		OutputDir:   t.TempDir(),
		Params:      func(p runParams) (model.RunRequest, error) { return p.request(testConfig()) },
	})
	h := srv.routes()

	id := startRun(t, h)
	waitStatus(t, h, id, model.RunStatusComplete)
	srv.wait()

	page := decode[eventsPage](t, do(t, h, http.MethodGet, "/runs/"+id+"/events?since=0", nil))
	assert.True(t, page.Done)
	for _, e := range page.Events {
		assert.False(t, e.Status.Terminal())
	}

	page = decode[eventsPage](t, do(t, h, http.MethodGet, "/runs/"+id+"/events?since=999999", nil))
	assert.True(t, page.Done)
	assert.Empty(t, page.Events)
}

func TestServer_NegativePaging(t *testing.T) {
	srv, h, _ := newTestServer(t, nil, false, sampleLead())
	id := startRun(t, h)
	waitStatus(t, h, id, model.RunStatusComplete)
	srv.wait()

	rr := do(t, h, http.MethodGet, "/runs?offset=-3&limit=-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decode[[]runView](t, rr), 1)

	_, h2, _ := newTestServer(t, newSQLiteStore(t), false)
	rr = do(t, h2, http.MethodGet, "/runs?offset=-3", nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
