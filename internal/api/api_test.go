package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/jobs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, auth *Auth) (*httptest.Server, *jobs.Manager) {
	t.Helper()
	runs := jobs.NewManager(8)
	h := NewHandler(runs, Info{Params: config.DefaultParams(), Scheme: "bfv", Address: "127.0.0.1:0"})
	srv := httptest.NewServer(NewRouter(h, auth))
	t.Cleanup(srv.Close)
	return srv, runs
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := get(t, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "bfv", body.Scheme)
	assert.Equal(t, config.DefaultParams().Fingerprint(), body.Fingerprint)
}

func TestRuns(t *testing.T) {
	srv, runs := newTestServer(t, nil)

	first := runs.Create(jobs.RoleServer)
	require.NoError(t, first.Advance(jobs.StateOnlineOPRF, "oprf"))
	runs.Create(jobs.RoleServer)

	resp := get(t, srv.URL+"/runs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []jobs.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	resp = get(t, srv.URL+"/runs/"+first.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one jobs.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	assert.Equal(t, jobs.StateOnlineOPRF, one.State)
	assert.Len(t, one.Events, 1)

	resp = get(t, srv.URL+"/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	auth := NewAuth("test-secret", "polypsi", time.Hour)
	srv, _ := newTestServer(t, auth)

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/health", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/runs", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/runs", "garbage").StatusCode)

	other, err := NewAuth("other-secret", "polypsi", time.Hour).GenerateToken("op", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/runs", other).StatusCode)

	token, err := auth.GenerateToken("op", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/runs", token).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/runs?token="+token, "").StatusCode)
}

func TestExpiredToken(t *testing.T) {
	auth := NewAuth("test-secret", "polypsi", -time.Minute)
	token, err := auth.GenerateToken("op", "admin")
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims(t *testing.T) {
	auth := NewAuth("test-secret", "polypsi", time.Hour)
	token, err := auth.GenerateToken("alice", "viewer")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "viewer", claims.Role)
}

func TestRunEvents(t *testing.T) {
	srv, runs := newTestServer(t, nil)
	run := runs.Create(jobs.RoleServer)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + run.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot jobs.Run
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, jobs.StateCreated, snapshot.State)

	require.NoError(t, run.Advance(jobs.StateOnlineOPRF, "oprf"))
	require.NoError(t, run.Advance(jobs.StateDone, "done"))

	var ev jobs.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, jobs.StateOnlineOPRF, ev.State)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, jobs.StateDone, ev.State)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestRunEventsFinished(t *testing.T) {
	srv, runs := newTestServer(t, nil)
	run := runs.Create(jobs.RoleClient)
	run.Fail(assert.AnError)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + run.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot jobs.Run
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, jobs.StateFailed, snapshot.State)
	assert.NotEmpty(t, snapshot.Error)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
