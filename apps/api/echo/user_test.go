package echoapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/clinic/apps/api/echo"
	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/auth"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/testutil"
)

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	pwd := "Tr0ub4dor&3"
	admin := testutil.CreateUser(t, f.usrRepo, "Root", "root", "root@example.com", pwd, user.RoleAdmin)
	student := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "alice@example.com", pwd, user.RoleStudent)

	tests := []httpTest{
		{
			name: "blank credentials", body: []byte(`{"username": "  ", "password": ""}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field cannot be blank", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: []byte(`{"username": "bob", "password": "whatever"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", body: []byte(`{"username": "alice", "password": "nope"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{name: "malformed body", body: []byte(`{"username": `), wantCode: http.StatusBadRequest},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/users/login"
	}
	runHTTPTests(t, f.app, tests)
	assert.Equal(t, 0, f.sessions.Len())

	login := func(uname string) LoginResponse {
		req, rec := newRequest(http.MethodPost, "/api/users/login", []byte(`{"username": "`+uname+`", "password": "`+pwd+`"}`))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res LoginResponse
		unmarshal(t, rec, &res)
		return res
	}

	res := login(" ROOT ")
	assert.Equal(t, admin.ID, res.User.ID)
	assert.Equal(t, auth.RouteAdmin, res.Route)
	assert.NotEmpty(t, res.Token)
	assert.NotContains(t, res.Token, pwd)

	res = login("alice")
	assert.Equal(t, student.ID, res.User.ID)
	assert.Equal(t, auth.RouteStudent, res.Route)
	assert.Equal(t, 2, f.sessions.Len())

	// logging in again replaces the session: the first token is rejected
	again := login("alice")
	assert.Equal(t, 2, f.sessions.Len())
	req, rec := newAuthRequest(http.MethodGet, "/api/users/me", res.Token)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusUnauthorized,
		wantData: marchallObj(t, httpErr{Error: "session ended, please log in again"}),
	}, rec)

	req, rec = newAuthRequest(http.MethodGet, "/api/users/me", again.Token)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}, rec)
}

func Test_userApi_loginRemote(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "identity provider is down"}`))
	}))
	defer remote.Close()

	f := setup(t, withConfig(func(conf *core.Config) {
		conf.Identity.BaseURL = remote.URL
		conf.Identity.Timeout = 0
	}))
	testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "Tr0ub4dor&3", user.RoleStudent)

	req, rec := newRequest(http.MethodPost, "/api/users/login", []byte(`{"username": "alice", "password": "Tr0ub4dor&3"}`))
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusInternalServerError,
		wantData: marchallObj(t, httpErr{Error: "identity provider is down"}),
	}, rec)
	assert.Equal(t, 0, f.sessions.Len())
}

func Test_userApi_loginRateLimit(t *testing.T) {
	f := setup(t, withConfig(func(conf *core.Config) {
		conf.Server.LoginRate = 0.001
		conf.Server.LoginBurst = 2
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, rec := newRequest(http.MethodPost, "/api/users/login", []byte(`{"username": "bob", "password": "x"}`))
		f.app.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func Test_userApi_logout(t *testing.T) {
	f := setup(t)
	student := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	token := getToken(t, f, student)

	runHTTPTests(t, f.app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/users/logout", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "logout", method: http.MethodPost, path: "/api/users/logout", token: token, wantCode: http.StatusNoContent},
		{
			name: "token rejected after logout", path: "/api/users/me", token: token, wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "session ended, please log in again"}),
		},
	})
	assert.Equal(t, 0, f.sessions.Len())
}

func Test_userApi_query(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Root", "root", "", "", user.RoleAdmin)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "", "", user.RoleStudent)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "", "", user.RoleStudent)
	adminToken := getToken(t, f, admin)

	runHTTPTests(t, f.app, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: getToken(t, f, alice),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/api/users", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, bob, alice, admin)},
		{name: "role=STUDENT", path: "/api/users?role=STUDENT", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, bob, alice)},
		{name: "role (unknown)", path: "/api/users?role=lol", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t)},
	})
}
