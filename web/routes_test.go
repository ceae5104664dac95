package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/broker"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/champ"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/conf"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/store"
)

func server(t *testing.T, cf *conf.Conf) (*httptest.Server, *champ.Controller) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	ctrl, err := champ.New(context.Background(), cf, st, broker.New())
	require.NoError(t, err)
	t.Cleanup(ctrl.Shutdown)

	s := &web{conf: cf, ctrl: ctrl}
	srv := httptest.NewServer(s.router())
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestRegisterEndpoint(t *testing.T) {
	srv, _ := server(t, conf.Default())

	resp := post(t, srv.URL+"/api/championship/register",
		`{"team_name": "Alpha", "api_endpoint": "http://localhost:9001/move"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var res result
	decode(t, resp, &res)
	assert.True(t, res.Success)

	// Duplicate name
	resp = post(t, srv.URL+"/api/championship/register",
		`{"team_name": "Alpha", "api_endpoint": "http://localhost:9002/move"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Invalid endpoint
	resp = post(t, srv.URL+"/api/championship/register",
		`{"team_name": "Beta", "api_endpoint": "gopher://hole"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Garbage body
	resp = post(t, srv.URL+"/api/championship/register", `{"team_name": `, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRequiresTwoTeams(t *testing.T) {
	srv, _ := server(t, conf.Default())

	resp := post(t, srv.URL+"/api/championship/start", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, ctrl := server(t, conf.Default())

	_, err := ctrl.Register("Alpha", "builtin:random")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/championship/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info c4.StatusInfo
	decode(t, resp, &info)
	assert.Equal(t, c4.Waiting, info.Status)
	assert.Equal(t, 1, info.TeamCount)
	assert.Zero(t, info.TotalRounds)
}

func TestScheduleAndLeaderboardEndpoints(t *testing.T) {
	srv, ctrl := server(t, conf.Default())

	resp, err := http.Get(srv.URL + "/api/championship/schedule")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sched struct {
		Rounds []scheduleRound `json:"rounds"`
	}
	decode(t, resp, &sched)
	assert.Empty(t, sched.Rounds, "no schedule before start")

	_, err = ctrl.Register("Alpha", "builtin:random")
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/api/championship/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var board []struct {
		TeamName string  `json:"team_name"`
		Points   float64 `json:"points"`
	}
	decode(t, resp, &board)
	require.Len(t, board, 1)
	assert.Equal(t, "Alpha", board[0].TeamName)
	assert.Zero(t, board[0].Points)
}

func TestClearCacheGated(t *testing.T) {
	cf := conf.Default()
	cf.Web.AdminToken = "sesame"
	srv, ctrl := server(t, cf)

	_, err := ctrl.Register("Alpha", "builtin:random")
	require.NoError(t, err)

	resp := post(t, srv.URL+"/api/clear-cache", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, ctrl.Status().TeamCount)

	resp = post(t, srv.URL+"/api/clear-cache", "",
		http.Header{"X-Admin-Token": []string{"sesame"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, ctrl.Status().TeamCount)
}

func TestRestartWithoutRunConflicts(t *testing.T) {
	srv, _ := server(t, conf.Default())
	resp := post(t, srv.URL+"/api/championship/restart", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cf := conf.Default()
	cf.Web.RateLimit = 1
	cf.Web.RateBurst = 2
	srv, _ := server(t, cf)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/api/championship/status")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst exceeded without a 429")
}
