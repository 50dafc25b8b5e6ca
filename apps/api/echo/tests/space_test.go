package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/tests"
)

func Test_spaceApi_createServer(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Faculty required", token: getToken(t, student), body: marchallObj(t, space.NewServer{Name: "Algebra"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "name required", token: getToken(t, faculty), body: marchallObj(t, space.NewServer{Name: "   "}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "created", token: getToken(t, faculty), body: marchallObj(t, space.NewServer{Name: "  Algebra ", Description: "Linear"}),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/servers", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var srv space.Server
				unmarshal(t, rec, &srv)
				assert.NotEmpty(t, srv.ID)
				assert.Equal(t, "Algebra", srv.Name)
				assert.Equal(t, faculty.ID, srv.OwnerID)
				assert.Regexp(t, "^[A-Z0-9]{8}$", srv.Code)
				assert.Empty(t, srv.MemberIDs)
			}
		})
	}
}

func Test_spaceApi_joinAndList(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra")
	other := testutil.CreateServer(t, spaceRepo, admin, "Biology")
	studentToken := getToken(t, student)

	joined := srv
	joined.MemberIDs = []string{student.ID}

	runTests(t, []httpTest{
		{name: "nothing joined yet", method: http.MethodGet, path: "/v1/servers", token: studentToken, wantData: marchallList(t)},
		{
			name: "invalid code", method: http.MethodPost, path: "/v1/servers/join", token: studentToken,
			body: marchallObj(t, space.JoinServer{Code: "lol"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": "invalid join code"}),
		},
		{
			name: "unknown code", method: http.MethodPost, path: "/v1/servers/join", token: studentToken,
			body: marchallObj(t, space.JoinServer{Code: "AAAA0000"}), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "server not found"}),
		},
		{
			name: "hidden server", method: http.MethodGet, path: "/v1/servers/" + srv.ID, token: studentToken,
			wantCode: http.StatusNotFound,
		},
		{
			name: "join (case insensitive)", method: http.MethodPost, path: "/v1/servers/join", token: studentToken,
			body: marchallObj(t, space.JoinServer{Code: " " + strings.ToLower(srv.Code) + " "}), wantData: marchallObj(t, joined),
		},
		{
			name: "join twice", method: http.MethodPost, path: "/v1/servers/join", token: studentToken,
			body: marchallObj(t, space.JoinServer{Code: srv.Code}), wantData: marchallObj(t, joined),
		},
		{name: "member sees server", method: http.MethodGet, path: "/v1/servers/" + srv.ID, token: studentToken, wantData: marchallObj(t, joined)},
		{name: "member list", method: http.MethodGet, path: "/v1/servers", token: studentToken, wantData: marchallList(t, joined)},
		{name: "owner list", method: http.MethodGet, path: "/v1/servers", token: getToken(t, faculty), wantData: marchallList(t, joined)},
		{name: "admin list", method: http.MethodGet, path: "/v1/servers", token: getToken(t, admin), wantData: marchallList(t, joined, other)},
	})
}

func Test_spaceApi_teams(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	stud1 := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	stud2 := testutil.CreateUser(t, usrRepo, "Zero", "zero", "zero@test.cd", "", []string{user.RoleStudent}, true)
	stud3 := testutil.CreateUser(t, usrRepo, "Nemo", "nemo", "nemo@test.cd", "", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, usrRepo, "Out", "out", "out@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", stud1.ID, stud2.ID, stud3.ID)
	existing := testutil.CreateTeam(t, spaceRepo, srv, "Reds", stud3.ID)

	facultyToken := getToken(t, faculty)
	stud1Token := getToken(t, stud1)

	t.Run("outsider cannot create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/servers/"+srv.ID+"/teams", getToken(t, outsider),
			marchallObj(t, space.NewTeam{Name: "Blues"}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("members must belong to the server", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/servers/"+srv.ID+"/teams", stud1Token,
			marchallObj(t, space.NewTeam{Name: "Blues", MemberIDs: []string{outsider.ID}}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"member_ids": "user is not a member of this server"}),
		}, rec)
	})

	var blues space.Team
	t.Run("student creates a team they belong to", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/servers/"+srv.ID+"/teams", stud1Token,
			marchallObj(t, space.NewTeam{Name: "Blues", MemberIDs: []string{stud2.ID, stud1.ID}}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &blues)
		assert.Equal(t, []string{stud1.ID, stud2.ID}, blues.MemberIDs)
		assert.Equal(t, srv.ID, blues.ServerID)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/servers/"+srv.ID+"/teams", facultyToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, existing, blues)}, rec)
	})

	t.Run("add member: not in team", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teams/"+existing.ID+"/members", stud1Token,
			marchallObj(t, space.AddTeamMember{UserID: stud1.ID}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("add member: owner", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teams/"+existing.ID+"/members", facultyToken,
			marchallObj(t, space.AddTeamMember{UserID: stud1.ID}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var team space.Team
		unmarshal(t, rec, &team)
		assert.ElementsMatch(t, []string{stud3.ID, stud1.ID}, team.MemberIDs)
	})

	t.Run("add member: unknown team", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teams/lol/members", facultyToken,
			marchallObj(t, space.AddTeamMember{UserID: stud1.ID}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "team not found"})}, rec)
	})

	t.Run("mine", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teams/mine", stud1Token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var teams []space.Team
		unmarshal(t, rec, &teams)
		ids := make([]string, 0, len(teams))
		for _, tm := range teams {
			ids = append(ids, tm.ID)
		}
		assert.ElementsMatch(t, []string{existing.ID, blues.ID}, ids)

		got, err := spaceRepo.ListTeams(context.Background(), space.TeamFilter{MemberID: outsider.ID})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
