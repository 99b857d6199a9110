package transitdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Runner, *registry) {
	t.Helper()
	reg := newRegistry(t)
	reg.add(0, "a")
	cfg := testConfig(reg.srv.URL, "")
	cfg.LODES.Jobs = nil
	r, _ := newTestRunner(t, cfg)
	return NewServer(context.Background(), r, 0, RunOptions{}), r, reg
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, r, _ := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var before healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	assert.Equal(t, "ok", before.Status)
	assert.Empty(t, before.LastRunID)

	run, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	rec = serve(s, http.MethodGet, "/api/health")
	var after healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Equal(t, run.ID, after.LastRunID)
	assert.Equal(t, RunSuccess, after.LastRunStatus)
	assert.Equal(t, run.Finished.Unix(), after.LastRunEpoch)
	assert.Equal(t, 2, after.Artifacts)
}

func TestServer_Manifest(t *testing.T) {
	s, r, _ := newTestServer(t)
	_, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	rec := serve(s, http.MethodGet, "/api/manifest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Artifacts []struct {
			Key  string `json:"key"`
			SHA1 string `json:"sha1"`
		} `json:"artifacts"`
		Runs []struct {
			ID string `json:"id"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Artifacts, 2)
	assert.Equal(t, "gtfs/gtfs_f-demo_archived.zip", body.Artifacts[0].Key)
	assert.Len(t, body.Runs, 1)
}

func TestServer_Refresh(t *testing.T) {
	s, r, _ := newTestServer(t)

	rec := serve(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		_, ok := r.Manifest().LastRun()
		return ok && !r.Running()
	}, 5*time.Second, 10*time.Millisecond)

	r.running.Store(true)
	rec = serve(s, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)
	r.running.Store(false)

	rec = serve(s, http.MethodPost, "/api/refresh?only=acs")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
