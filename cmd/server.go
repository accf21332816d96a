package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
	"github.com/sells-group/leadscout/internal/store"
)

// runner executes one run. *pipeline.Pipeline satisfies it.
type runner interface {
	RunWithID(ctx context.Context, id string, req model.RunRequest) (*model.RunResult, error)
}

// runFactory builds a runner whose events go to events.
type runFactory func(events progress.Sink, dropped func() int64, ts time.Time) runner

type serverOptions struct {
	EventBuffer    int
	AllowedOrigins []string
	OutputDir      string
	Formats        []export.Format
	// Params resolves request overrides into a run request.
	Params func(runParams) (model.RunRequest, error)
}

var errBusy = errors.New("a run is already in progress")

// liveRun is a run started by this process.
type liveRun struct {
	id      string
	req     model.RunRequest
	events  *progress.Recorder
	cancel  context.CancelFunc
	created time.Time
	done    chan struct{}

	// set once before done is closed
	result *model.RunResult
	err    error
	files  []string
}

func (lr *liveRun) finished() bool {
	select {
	case <-lr.done:
		return true
	default:
		return false
	}
}

// runView is the JSON shape of a run.
type runView struct {
	ID        string           `json:"id"`
	Status    model.RunStatus  `json:"status"`
	State     model.RunState   `json:"state,omitempty"`
	Request   model.RunRequest `json:"request"`
	Stats     *model.RunStats  `json:"stats,omitempty"`
	Error     string           `json:"error,omitempty"`
	Files     []string         `json:"files,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
}

func (lr *liveRun) view() runView {
	v := runView{ID: lr.id, Status: model.RunStatusRunning, Request: lr.req, CreatedAt: lr.created}
	if !lr.finished() {
		return v
	}
	if lr.result != nil {
		stats := lr.result.Stats
		v.State = lr.result.State
		v.Status = model.StatusForState(lr.result.State)
		v.Stats = &stats
		v.Error = lr.result.Error
		v.UpdatedAt = stats.FinishedAt
	}
	if lr.err != nil {
		v.Status = model.RunStatusFailed
		v.Error = lr.err.Error()
	}
	v.Files = lr.files
	return v
}

func storedView(r model.Run) runView {
	return runView{
		ID:        r.ID,
		Status:    r.Status,
		Request:   r.Request,
		Stats:     r.Stats,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// server hosts runs behind the HTTP API.
type server struct {
	base    context.Context
	store   store.Store // may be nil
	factory runFactory
	opts    serverOptions

	mu     sync.Mutex
	runs   map[string]*liveRun
	active string
	wg     sync.WaitGroup
}

func newServer(base context.Context, st store.Store, factory runFactory, opts serverOptions) *server {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &server{base: base, store: st, factory: factory, opts: opts, runs: make(map[string]*liveRun)}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/events", s.runEvents)
			r.Get("/leads", s.runLeads)
			r.Post("/stop", s.stopRun)
		})
	})
	return r
}

// start launches req in the background. Only one run executes at a time.
func (s *server) start(req model.RunRequest) (*liveRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, errBusy
	}

	ctx, cancel := context.WithCancel(s.base)
	lr := &liveRun{
		id:      uuid.New().String(),
		req:     req,
		events:  progress.NewRecorder(2000),
		cancel:  cancel,
		created: time.Now().UTC(),
		done:    make(chan struct{}),
	}
	s.runs[lr.id] = lr
	s.active = lr.id

	ts := time.Now()
	queue := progress.NewChannel(s.opts.EventBuffer)
	r := s.factory(queue, queue.Dropped, ts)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		drain(queue, lr.events, progress.NewLogSink(nil))
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		res, err := r.RunWithID(ctx, lr.id, req)
		queue.Close()
		<-drained

		var files []string
		if res != nil {
			var werr error
			files, werr = export.WriteAll(s.opts.OutputDir, ts, res.Leads, s.opts.Formats)
			if werr != nil {
				zap.L().Error("serve: export failed", zap.String("run_id", lr.id), zap.Error(werr))
			}
		}

		s.mu.Lock()
		lr.result, lr.err, lr.files = res, err, files
		close(lr.done)
		s.active = ""
		s.mu.Unlock()
	}()

	return lr, nil
}

// wait blocks until every started run has returned.
func (s *server) wait() { s.wg.Wait() }

func (s *server) lookup(id string) *liveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *server) createRun(w http.ResponseWriter, r *http.Request) {
	var params runParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := s.opts.Params(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lr, err := s.start(req)
	if errors.Is(err, errBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/runs/"+lr.id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": lr.id})
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, offset = max(limit, 0), max(offset, 0)
	status := model.RunStatus(q.Get("status"))

	if s.store != nil {
		runs, err := s.store.ListRuns(r.Context(), store.RunFilter{Status: status, Limit: limit, Offset: offset})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]runView, 0, len(runs))
		for _, run := range runs {
			out = append(out, s.freshest(run))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	s.mu.Lock()
	out := make([]runView, 0, len(s.runs))
	for _, lr := range s.runs {
		if v := lr.view(); status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, page(out, limit, offset))
}

// freshest prefers the in-memory view of a run this process owns.
func (s *server) freshest(r model.Run) runView {
	if lr := s.lookup(r.ID); lr != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return lr.view()
	}
	return storedView(r)
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if lr := s.lookup(id); lr != nil {
		s.mu.Lock()
		v := lr.view()
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, v)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, storedView(*run))
}

// eventsPage is one poll of a run's progress.
type eventsPage struct {
	Events []progress.Event `json:"events"`
	Next   int              `json:"next"`
	Done   bool             `json:"done"`
}

func (s *server) runEvents(w http.ResponseWriter, r *http.Request) {
	lr := s.lookup(chi.URLParam(r, "id"))
	if lr == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	since, _ := strconv.Atoi(r.URL.Query().Get("since"))
	// Read finished before the events: the drain ends before done closes, so
	// a finished run's page already holds every recorded event. The terminal
	// event itself may have been dropped by the bounded queue.
	done := lr.finished()
	events, next := lr.events.Since(since)
	if events == nil {
		events = []progress.Event{}
	}
	writeJSON(w, http.StatusOK, eventsPage{Events: events, Next: next, Done: done || lr.events.Done()})
}

func (s *server) runLeads(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lr := s.lookup(id)

	if lr != nil && lr.finished() {
		s.mu.Lock()
		res := lr.result
		s.mu.Unlock()
		leads := []model.Lead{}
		if res != nil {
			leads = res.Leads
		}
		writeJSON(w, http.StatusOK, leads)
		return
	}

	if s.store != nil {
		if lr == nil {
			if _, err := s.store.GetRun(r.Context(), id); errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
		}
		leads, err := s.store.ListLeads(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if leads == nil {
			leads = []model.Lead{}
		}
		writeJSON(w, http.StatusOK, leads)
		return
	}

	if lr == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, leadsFromEvents(lr.events))
}

// leadsFromEvents collects the leads announced so far by a running run.
func leadsFromEvents(rec *progress.Recorder) []model.Lead {
	events, _ := rec.Since(0)
	out := []model.Lead{}
	for _, e := range events {
		if e.Status == progress.StatusLeadFound && e.Lead != nil {
			out = append(out, *e.Lead)
		}
	}
	return out
}

func (s *server) stopRun(w http.ResponseWriter, r *http.Request) {
	lr := s.lookup(chi.URLParam(r, "id"))
	if lr == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if lr.finished() {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}
	lr.cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping", "run_id": lr.id})
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
