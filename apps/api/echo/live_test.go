package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clinic/core/analytics"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/testutil"
)

type liveMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func dialLive(t *testing.T, srv *httptest.Server, collection, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/" + collection + "?token=" + token
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, res, err
}

func readLive(t *testing.T, conn *websocket.Conn, v interface{}) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg liveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	if v != nil && msg.Payload != nil {
		require.NoError(t, json.Unmarshal(msg.Payload, v))
	}
	return msg.Type
}

func Test_liveApi_cases(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "", "", user.RoleStudent)
	c1 := testutil.CreateCase(t, f.caseRepo, "c1", "Contract Review", alice)
	testutil.CreateCase(t, f.caseRepo, "c2", "Lease Drafting", bob)

	conn, _, err := dialLive(t, srv, "cases", getToken(t, f, alice))
	require.NoError(t, err)

	var snapshot []cases.Case
	assert.Equal(t, "cases", readLive(t, conn, &snapshot))
	if assert.Len(t, snapshot, 1) {
		assert.Equal(t, c1.ID, snapshot[0].ID)
	}

	_, err = f.caseSvc.Assign(context.Background(), cases.NewCase{Title: "Lease Renewal", AssignedTo: alice.ID}, user.User{})
	require.NoError(t, err)

	assert.Equal(t, "cases", readLive(t, conn, &snapshot))
	if assert.Len(t, snapshot, 2) {
		assert.Equal(t, "Lease Renewal", snapshot[0].Title)
		assert.Equal(t, cases.DefaultCreatedBy, snapshot[0].CreatedBy)
	}
}

func Test_liveApi_subscriptionError(t *testing.T) {
	repo := &faultyCaseRepo{queryFailures: 1}
	f := setup(t, withFaultyCaseRepo(repo))
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	conn, _, err := dialLive(t, srv, "cases", getToken(t, f, alice))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg liveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "query interrupted", msg.Error)

	// the stream is still open and recovers on the next write
	_, err = f.caseSvc.Assign(context.Background(), cases.NewCase{Title: "Contract Review", AssignedTo: alice.ID}, user.User{})
	require.NoError(t, err)

	var snapshot []cases.Case
	assert.Equal(t, "cases", readLive(t, conn, &snapshot))
	assert.Len(t, snapshot, 1)
}

func Test_liveApi_analytics(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	admin := testutil.CreateUser(t, f.usrRepo, "Root", "root", "", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	testutil.CreateCase(t, f.caseRepo, "c1", "Contract Review", alice)

	conn, _, err := dialLive(t, srv, "analytics", getToken(t, f, admin))
	require.NoError(t, err)

	var rep analytics.Report
	assert.Equal(t, "analytics", readLive(t, conn, &rep))
	assert.Equal(t, 2, rep.TotalUsers)
	assert.Equal(t, 1, rep.TotalCases)
}

func Test_liveApi_forbidden(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	token := getToken(t, f, alice)

	tests := []struct {
		name       string
		collection string
		token      string
		wantCode   int
	}{
		{name: "no token", collection: "cases", wantCode: http.StatusUnauthorized},
		{name: "admin only", collection: "users", token: token, wantCode: http.StatusForbidden},
		{name: "analytics admin only", collection: "analytics", token: token, wantCode: http.StatusForbidden},
		{name: "unknown topic", collection: "tasks", token: token, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := dialLive(t, srv, tt.collection, tt.token)
			require.Error(t, err)
			require.NotNil(t, res)
			defer res.Body.Close()
			assert.Equal(t, tt.wantCode, res.StatusCode)
		})
	}
}
