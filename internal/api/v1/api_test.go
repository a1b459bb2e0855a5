package v1

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/migrations"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/queue"
)

var testLimits = pipeline.Limits{Search: 3, Download: 3, Conversion: 2, Import: 2}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err, "open db")
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(migrations.InitialSQL)
	require.NoError(t, err, "apply schema")
	return db
}

type testAPI struct {
	store      *queue.Store
	eventLog   *events.EventLog
	controller *fakeController
	base       string
	client     *http.Client
}

type fakeController struct {
	mu      sync.Mutex
	paused  []string
	resumed []string
	removed []string
}

func (f *fakeController) Name() string { return "fake" }

func (f *fakeController) Pause(ctx context.Context, h client.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, h.ID)
	return nil
}

func (f *fakeController) Resume(ctx context.Context, h client.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, h.ID)
	return nil
}

func (f *fakeController) Remove(ctx context.Context, h client.Handle, deleteFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, fmt.Sprintf("%s:%t", h.ID, deleteFiles))
	return nil
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	db := setupTestDB(t)
	store := queue.NewStore(db, testLimits)
	eventLog := events.NewEventLog(db)
	controller := &fakeController{}

	srv, err := New(ServerDeps{
		Queue:    store,
		EventLog: eventLog,
		Bus:      events.NewBus(eventLog, nil),
		Clients: map[pipeline.SourceType]TransferController{
			pipeline.SourceTorrent: controller,
			pipeline.SourceUsenet:  controller,
		},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testAPI{
		store:      store,
		eventLog:   eventLog,
		controller: controller,
		base:       ts.URL,
		client:     ts.Client(),
	}
}

func (a *testAPI) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := a.client.Post(a.base+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testAPI) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := a.client.Get(a.base + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testAPI) delete(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, a.base+path, nil)
	require.NoError(t, err)
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// seedDownloading inserts an item and walks it to downloading.
func seedDownloading(t *testing.T, store *queue.Store, identity string) *pipeline.Item {
	t.Helper()
	item, err := store.Enqueue(&pipeline.Item{
		Identity: identity,
		Title:    "Project Hail Mary",
		Author:   "Andy Weir",
	})
	require.NoError(t, err)
	require.NoError(t, store.Transition(item, pipeline.EventSubmitForSearch))
	item.Selected = &pipeline.Selected{
		Reference:  "magnet:?xt=urn:btih:abc",
		Title:      "Project Hail Mary (M4B)",
		SourceType: pipeline.SourceTorrent,
		Format:     "m4b",
	}
	require.NoError(t, store.Transition(item, pipeline.EventCandidateFound))
	item.ClientID = "abc"
	require.NoError(t, store.Transition(item, pipeline.EventClientAccepted))
	return item
}

func TestAddWanted(t *testing.T) {
	api := setupAPI(t)

	resp := api.post(t, "/api/v1/wanted", addWantedRequest{
		Identity: "asin-B08G9PRS1K",
		Title:    "Project Hail Mary",
		Author:   "Andy Weir",
		Priority: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[itemResponse](t, resp)
	assert.NotZero(t, got.ID)
	assert.Equal(t, "queued", got.Status)
	assert.Equal(t, "Project Hail Mary", got.Title)
	assert.Equal(t, 5, got.Priority)
}

func TestAddWanted_MissingTitle(t *testing.T) {
	api := setupAPI(t)

	resp := api.post(t, "/api/v1/wanted", addWantedRequest{Author: "Andy Weir"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddWanted_IdempotentByIdentity(t *testing.T) {
	api := setupAPI(t)

	first := api.post(t, "/api/v1/wanted", addWantedRequest{Identity: "asin-1", Title: "Dune"})
	require.Equal(t, http.StatusCreated, first.StatusCode)
	firstItem := decode[itemResponse](t, first)

	second := api.post(t, "/api/v1/wanted", addWantedRequest{Identity: "asin-1", Title: "Dune"})
	require.Equal(t, http.StatusOK, second.StatusCode)
	secondItem := decode[itemResponse](t, second)

	assert.Equal(t, firstItem.ID, secondItem.ID)

	// Only the insert announces item.queued; the idempotent hit is silent.
	records, err := api.eventLog.Since(time.Time{}, 100)
	require.NoError(t, err)
	var queued int
	for _, rec := range records {
		if rec.EventType == events.EventItemQueued {
			queued++
			assert.Equal(t, firstItem.ID, rec.EntityID)
		}
	}
	assert.Equal(t, 1, queued)
}

func TestAddManual_SkipsSearch(t *testing.T) {
	api := setupAPI(t)

	resp := api.post(t, "/api/v1/wanted/manual", addManualRequest{
		addWantedRequest: addWantedRequest{Title: "Project Hail Mary", Author: "Andy Weir"},
		Selection: manualSelection{
			Reference:  "https://indexer.example/get/42",
			SourceType: "usenet",
			Format:     "m4b",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[itemResponse](t, resp)
	assert.Equal(t, "found", got.Status)
	require.NotNil(t, got.Selected)
	assert.Equal(t, "usenet", got.Selected.SourceType)
	assert.Equal(t, 100, got.Selected.Confidence)
	assert.Equal(t, "Project Hail Mary", got.Selected.Title)
}

func TestAddManual_IdempotentByIdentity(t *testing.T) {
	api := setupAPI(t)
	req := addManualRequest{
		addWantedRequest: addWantedRequest{Identity: "asin-B08G9PRS1K", Title: "Project Hail Mary"},
		Selection: manualSelection{
			Reference:  "https://indexer.example/get/42",
			SourceType: "usenet",
		},
	}

	first := api.post(t, "/api/v1/wanted/manual", req)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decode[itemResponse](t, first)

	second := api.post(t, "/api/v1/wanted/manual", req)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, created.ID, decode[itemResponse](t, second).ID)
}

func TestAddManual_InvalidSourceType(t *testing.T) {
	api := setupAPI(t)

	resp := api.post(t, "/api/v1/wanted/manual", addManualRequest{
		addWantedRequest: addWantedRequest{Title: "Dune"},
		Selection:        manualSelection{Reference: "magnet:?x", SourceType: "gopher"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListQueue_StatusFilter(t *testing.T) {
	api := setupAPI(t)
	seedDownloading(t, api.store, "asin-1")
	_, err := api.store.Enqueue(&pipeline.Item{Identity: "asin-2", Title: "Dune"})
	require.NoError(t, err)

	resp := api.get(t, "/api/v1/queue?status=downloading")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[listItemsResponse](t, resp)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "downloading", got.Items[0].Status)

	all := decode[listItemsResponse](t, api.get(t, "/api/v1/queue"))
	assert.Len(t, all.Items, 2)
}

func TestListQueue_InvalidStatus(t *testing.T) {
	api := setupAPI(t)

	resp := api.get(t, "/api/v1/queue?status=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueueStats(t *testing.T) {
	api := setupAPI(t)
	seedDownloading(t, api.store, "asin-1")
	_, err := api.store.Enqueue(&pipeline.Item{Identity: "asin-2", Title: "Dune"})
	require.NoError(t, err)

	resp := api.get(t, "/api/v1/queue/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[statsResponse](t, resp)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 2, got.Active)
	assert.Equal(t, 1, got.Counts["downloading"])
	assert.Equal(t, 1, got.Counts["queued"])
}

func TestGetItem(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	resp := api.get(t, fmt.Sprintf("/api/v1/queue/%d", item.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[itemResponse](t, resp)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "abc", got.ClientID)
}

func TestGetItem_NotFound(t *testing.T) {
	api := setupAPI(t)

	resp := api.get(t, "/api/v1/queue/9999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetItem_InvalidID(t *testing.T) {
	api := setupAPI(t)

	resp := api.get(t, "/api/v1/queue/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPauseAndResume(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/pause", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", decode[itemResponse](t, resp).Status)
	assert.Equal(t, []string{"abc"}, api.controller.paused)

	resp = api.post(t, fmt.Sprintf("/api/v1/queue/%d/resume", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "downloading", decode[itemResponse](t, resp).Status)
	assert.Equal(t, []string{"abc"}, api.controller.resumed)
}

func TestPause_InvalidTransition(t *testing.T) {
	api := setupAPI(t)
	item, err := api.store.Enqueue(&pipeline.Item{Identity: "asin-1", Title: "Dune"})
	require.NoError(t, err)

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/pause", item.ID), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, "INVALID_TRANSITION", body.Code)
}

func TestCancel_RemovesClientFiles(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/cancel", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", decode[itemResponse](t, resp).Status)
	assert.Equal(t, []string{"abc:true"}, api.controller.removed)
}

func TestRetry_ResetsFailedItem(t *testing.T) {
	api := setupAPI(t)
	item, err := api.store.Enqueue(&pipeline.Item{Identity: "asin-1", Title: "Dune"})
	require.NoError(t, err)
	require.NoError(t, api.store.Transition(item, pipeline.EventSubmitForSearch))
	require.NoError(t, api.store.Transition(item, pipeline.EventNoCandidate))
	require.Equal(t, pipeline.StatusFailed, item.Status)

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/retry", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[itemResponse](t, resp)
	assert.Equal(t, "queued", got.Status)
	assert.Empty(t, got.LastError)
	assert.Zero(t, got.SearchRetries)
}

func TestRequeue_AbandonsDownload(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/requeue", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[itemResponse](t, resp)
	assert.Equal(t, "queued", got.Status)
	assert.Nil(t, got.Selected)
	assert.Empty(t, got.ClientID)
	assert.Equal(t, []string{"abc:true"}, api.controller.removed)
}

func TestRequeue_TerminalRejected(t *testing.T) {
	api := setupAPI(t)
	item, err := api.store.Enqueue(&pipeline.Item{Identity: "asin-1", Title: "Dune"})
	require.NoError(t, err)
	require.NoError(t, api.store.Transition(item, pipeline.EventOperatorCancel))

	resp := api.post(t, fmt.Sprintf("/api/v1/queue/%d/requeue", item.ID), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteItem(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	// Active items cannot be deleted.
	resp := api.delete(t, fmt.Sprintf("/api/v1/queue/%d", item.ID))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	cancel := api.post(t, fmt.Sprintf("/api/v1/queue/%d/cancel", item.ID), nil)
	require.Equal(t, http.StatusOK, cancel.StatusCode)

	resp = api.delete(t, fmt.Sprintf("/api/v1/queue/%d", item.ID))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, api.get(t, fmt.Sprintf("/api/v1/queue/%d", item.ID)).StatusCode)
}

func TestListEvents(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")

	_, err := api.eventLog.Append(events.FromTransition(item.ID, item.Identity,
		pipeline.StatusQueued, pipeline.StatusSearching, 0))
	require.NoError(t, err)
	_, err = api.eventLog.Append(events.FromTransition(item.ID, item.Identity,
		pipeline.StatusSearching, pipeline.StatusFound, 0))
	require.NoError(t, err)

	resp := api.get(t, "/api/v1/events?limit=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[listEventsResponse](t, resp)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "item.state.changed", got.Items[0].EventType)
	assert.Equal(t, item.ID, got.Items[0].EntityID)
}

func TestListItemEvents(t *testing.T) {
	api := setupAPI(t)
	item := seedDownloading(t, api.store, "asin-1")
	other := seedDownloading(t, api.store, "asin-2")

	_, err := api.eventLog.Append(events.FromTransition(item.ID, item.Identity,
		pipeline.StatusQueued, pipeline.StatusSearching, 0))
	require.NoError(t, err)
	_, err = api.eventLog.Append(events.FromTransition(other.ID, other.Identity,
		pipeline.StatusQueued, pipeline.StatusSearching, 0))
	require.NoError(t, err)

	resp := api.get(t, fmt.Sprintf("/api/v1/queue/%d/events", item.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[listEventsResponse](t, resp)
	require.Len(t, got.Items, 1)
	assert.Equal(t, item.ID, got.Items[0].EntityID)
}

func TestListEvents_NoLogConfigured(t *testing.T) {
	db := setupTestDB(t)
	srv, err := New(ServerDeps{Queue: queue.NewStore(db, testLimits)})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	api := setupAPI(t)
	seedDownloading(t, api.store, "asin-1")

	resp := api.get(t, "/api/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, float64(1), got["active"])
}

func TestNew_RequiresQueue(t *testing.T) {
	_, err := New(ServerDeps{})
	assert.Error(t, err)
}
