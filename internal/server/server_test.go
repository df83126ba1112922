package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(New(st, nil).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	scan, err := st.CreateRun(ctx, model.RunKindScan, "F1")
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, scan.ID, model.BatchSummary{Succeeded: 5}))
	_, err = st.CreateRun(ctx, model.RunKindFill, "F1")
	require.NoError(t, err)

	var body struct {
		Runs  []model.BatchRun `json:"runs"`
		Count int              `json:"count"`
	}
	code := getJSON(t, srv.URL+"/api/runs", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)

	code = getJSON(t, srv.URL+"/api/runs?kind=scan", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, model.RunKindScan, body.Runs[0].Kind)
	assert.Equal(t, 5, body.Runs[0].Summary.Succeeded)
}

func TestGetRun(t *testing.T) {
	srv, st := newTestServer(t)

	run, err := st.CreateRun(context.Background(), model.RunKindReconcile, "F2")
	require.NoError(t, err)

	var got model.BatchRun
	code := getJSON(t, srv.URL+"/api/runs/"+run.ID, &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusRunning, got.Status)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/runs/no-such-run", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "run not found", body["error"])
}

func TestListItems(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.UpsertPendingItems(ctx, []model.PendingItem{
		{RequestNo: "11000001", ItemCategory: "Gold Ring", Pieces: 2,
			DeclaredPurity: "22K916", DeclaredWeight: 8.4, FirmID: "F1", Status: model.ItemStatusPending},
		{RequestNo: "11000002", ItemCategory: "Silver Chain", Pieces: 1,
			DeclaredPurity: "925", DeclaredWeight: 40.0, FirmID: "F2", Status: model.ItemStatusPending},
	})
	require.NoError(t, err)

	items, err := st.ListPendingItems(ctx, store.ItemFilter{FirmID: "F2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, st.AssignJobNo(ctx, items[0].ID, "12000099"))

	var body struct {
		Items []model.PendingItem `json:"items"`
		Count int                 `json:"count"`
	}
	code := getJSON(t, srv.URL+"/api/items", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)

	code = getJSON(t, srv.URL+"/api/items?unmatched=true", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "11000001", body.Items[0].RequestNo)

	code = getJSON(t, srv.URL+"/api/items?firm=F2", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "12000099", body.Items[0].JobNo)
}

func TestLicenseWithoutClient(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/license", &body)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
