package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/audit"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/enrich"
	"github.com/ousepachn/insta-media-sync/internal/guard"
	"github.com/ousepachn/insta-media-sync/internal/indexer"
	"github.com/ousepachn/insta-media-sync/internal/repositories/runlog"
	"github.com/ousepachn/insta-media-sync/internal/status"
	"github.com/ousepachn/insta-media-sync/internal/syncer"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	mu      sync.Mutex
	scrapes []string
	enrichs []string
	verifys []string
	done    chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{done: make(chan struct{}, 8)}
}

func (f *fakeSyncer) Scrape(_ context.Context, username string, _ int, _ bool) (syncer.ScrapeResult, error) {
	f.mu.Lock()
	f.scrapes = append(f.scrapes, username)
	f.mu.Unlock()
	f.done <- struct{}{}
	return syncer.ScrapeResult{}, nil
}

func (f *fakeSyncer) ProcessAI(_ context.Context, username string, _ domain.ProcessMode) (enrich.Summary, error) {
	f.mu.Lock()
	f.enrichs = append(f.enrichs, username)
	f.mu.Unlock()
	f.done <- struct{}{}
	return enrich.Summary{}, nil
}

func (f *fakeSyncer) Verify(_ context.Context, username string) (audit.Report, error) {
	f.mu.Lock()
	f.verifys = append(f.verifys, username)
	f.mu.Unlock()
	f.done <- struct{}{}
	return audit.Report{}, nil
}

func (f *fakeSyncer) ScheduleSync(context.Context) error { return nil }

func (f *fakeSyncer) waitForRun(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}
}

type memSink struct {
	sync   map[string]status.Status
	verify map[string]status.Status
}

func newMemSink() *memSink {
	return &memSink{sync: map[string]status.Status{}, verify: map[string]status.Status{}}
}

func (m *memSink) SetSync(_ context.Context, username string, st status.Status) error {
	m.sync[username] = st
	return nil
}

func (m *memSink) GetSync(_ context.Context, username string) (status.Status, bool, error) {
	st, ok := m.sync[username]
	return st, ok, nil
}

func (m *memSink) SetVerify(_ context.Context, username string, st status.Status) error {
	m.verify[username] = st
	return nil
}

func (m *memSink) GetVerify(_ context.Context, username string) (status.Status, bool, error) {
	st, ok := m.verify[username]
	return st, ok, nil
}

type emptyRunLog struct{}

func (emptyRunLog) Create(context.Context, domain.SyncRun) error { return nil }
func (emptyRunLog) Finish(context.Context, string, domain.RunStatus, int, int, string) error {
	return nil
}
func (emptyRunLog) GetLatestByUsername(context.Context, string, int) ([]*domain.SyncRun, error) {
	return nil, nil
}
func (emptyRunLog) CleanupOldRecords(context.Context, string) (int64, error) { return 0, nil }
func (emptyRunLog) GetByID(context.Context, string) (*domain.SyncRun, error) {
	return nil, runlog.ErrNotFound
}

type stockedRunLog struct {
	emptyRunLog
	run *domain.SyncRun
}

func (s stockedRunLog) GetByID(_ context.Context, id string) (*domain.SyncRun, error) {
	if s.run != nil && s.run.ID == id {
		return s.run, nil
	}
	return nil, runlog.ErrNotFound
}

type fakeIndexer struct {
	matches []indexer.Match
	err     error
	queries []string
}

func (f *fakeIndexer) UpsertRecords(context.Context, domain.RecordSet) error { return nil }

func (f *fakeIndexer) Query(_ context.Context, query string, _ int) ([]indexer.Match, error) {
	f.queries = append(f.queries, query)
	return f.matches, f.err
}

func newTestServer(sc *fakeSyncer, sink *memSink, g *guard.Guard) *Server {
	return &Server{
		syncer:  sc,
		status:  sink,
		runLog:  emptyRunLog{},
		indexer: &fakeIndexer{},
		guard:   g,
		logger:  logger.New(logger.Opts{}).WithComponent("ServerTest"),
	}
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestScrapeEndpointAcceptsAndRuns(t *testing.T) {
	sc := newFakeSyncer()
	s := newTestServer(sc, newMemSink(), guard.New())

	rec := doRequest(s, http.MethodPost, "/api/scrape", `{"username":"alice","max_posts":5}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sc.waitForRun(t)
	assert.Equal(t, []string{"alice"}, sc.scrapes)
}

func TestScrapeEndpointValidation(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())

	assert.Equal(t, http.StatusBadRequest,
		doRequest(s, http.MethodPost, "/api/scrape", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		doRequest(s, http.MethodPost, "/api/scrape", `not-json`).Code)
}

func TestScrapeEndpointConflictsWithActiveRun(t *testing.T) {
	g := guard.New()
	release, err := g.Acquire("alice")
	require.NoError(t, err)
	defer release()

	s := newTestServer(newFakeSyncer(), newMemSink(), g)

	rec := doRequest(s, http.MethodPost, "/api/scrape", `{"username":"alice"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProcessAIEndpointRejectsUnknownMode(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())

	rec := doRequest(s, http.MethodPost, "/api/process-ai",
		`{"username":"alice","processing_option":"everything"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessAIEndpointRuns(t *testing.T) {
	sc := newFakeSyncer()
	s := newTestServer(sc, newMemSink(), guard.New())

	rec := doRequest(s, http.MethodPost, "/api/process-ai",
		`{"username":"alice","processing_option":"update_all"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sc.waitForRun(t)
	assert.Equal(t, []string{"alice"}, sc.enrichs)
}

func TestVerifyEndpointRuns(t *testing.T) {
	sc := newFakeSyncer()
	s := newTestServer(sc, newMemSink(), guard.New())

	rec := doRequest(s, http.MethodPost, "/api/verify", `{"username":"alice"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sc.waitForRun(t)
	assert.Equal(t, []string{"alice"}, sc.verifys)
}

func TestStatusEndpoints(t *testing.T) {
	sink := newMemSink()
	sink.sync["alice"] = status.Status{Status: status.StateInProgress, CurrentPost: 3, TotalPosts: 10}
	sink.verify["alice"] = status.Status{Status: status.StateCompleted, Message: "clean"}
	s := newTestServer(newFakeSyncer(), sink, guard.New())

	rec := doRequest(s, http.MethodGet, "/api/status/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, status.StateInProgress, body.Status)
	assert.Equal(t, 3, body.CurrentPost)

	rec = doRequest(s, http.MethodGet, "/api/verify-status/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, status.StateCompleted, body.Status)

	rec = doRequest(s, http.MethodGet, "/api/status/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunDetailEndpoint(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())
	s.runLog = stockedRunLog{run: &domain.SyncRun{
		ID:        "r1",
		Username:  "alice",
		Kind:      domain.RunKindScrape,
		Status:    domain.RunStatusCompleted,
		Processed: 12,
		StartedAt: started,
	}}

	rec := doRequest(s, http.MethodGet, "/api/runs/alice/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body.ID)
	assert.Equal(t, string(domain.RunKindScrape), body.Kind)
	assert.Equal(t, 12, body.Processed)

	// A run is only visible under its own username.
	assert.Equal(t, http.StatusNotFound,
		doRequest(s, http.MethodGet, "/api/runs/bob/r1", "").Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(s, http.MethodGet, "/api/runs/alice/missing", "").Code)
}

func TestSearchEndpointReturnsMatches(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())
	idx := &fakeIndexer{matches: []indexer.Match{
		{PostID: "p1", Score: 0.91, Username: "alice", Description: "a sunset over the harbor"},
	}}
	s.indexer = idx

	rec := doRequest(s, http.MethodPost, "/api/search", `{"query":"sunset","top_k":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sunset"}, idx.queries)

	var body struct {
		Query   string          `json:"query"`
		Results []indexer.Match `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "p1", body.Results[0].PostID)
	assert.Equal(t, 0.91, body.Results[0].Score)
}

func TestSearchEndpointValidation(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())

	assert.Equal(t, http.StatusBadRequest,
		doRequest(s, http.MethodPost, "/api/search", `{}`).Code)
}

func TestSearchEndpointWithoutIndex(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())
	s.indexer = indexer.Noop{}

	rec := doRequest(s, http.MethodPost, "/api/search", `{"query":"sunset"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(newFakeSyncer(), newMemSink(), guard.New())

	rec := doRequest(s, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
