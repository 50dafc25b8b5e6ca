package space_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/storage/database/inmem"
	"github.com/classync/classync/tests"
)

var now = time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

// collidingRepo reports the first `collisions` join codes as taken.
type collidingRepo struct {
	space.Repository
	collisions int
	codes      []string
}

func (r *collidingRepo) CreateServer(ctx context.Context, srv space.Server) (space.Server, error) {
	r.codes = append(r.codes, srv.Code)
	if len(r.codes) <= r.collisions {
		return space.Server{}, space.ErrCodeExists
	}
	return r.Repository.CreateServer(ctx, srv)
}

type fixture struct {
	repo                    space.Repository
	svc                     *space.Service
	prof, admin, alice, bob user.User
}

func setup(t *testing.T) *fixture {
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	f := &fixture{repo: inmemdb.NewSpaceRepository(db)}
	f.svc = space.NewService(f.repo, clock)
	f.prof = testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	f.admin = testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	f.alice = testutil.CreateUser(t, usrRepo, "Alice", "alice", "alice@test.cd", "", []string{user.RoleStudent}, true)
	f.bob = testutil.CreateUser(t, usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleStudent}, true)
	return f
}

func TestNewCode(t *testing.T) {
	validate := validator.New()
	space.InitValidators(validate, core.NewTranslator())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := space.NewCode()
		js := space.JoinServer{Code: code}
		require.NoError(t, js.Validate(validate), code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}

	js := space.JoinServer{Code: " ab12-cd34 "}
	require.NoError(t, js.Validate(validate))
	assert.Equal(t, "AB12CD34", js.Code)

	js = space.JoinServer{Code: "short"}
	assert.Error(t, js.Validate(validate))
}

func TestService_CreateServer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateServer(ctx, space.NewServer{Name: "Algebra"}, f.alice)
	assert.True(t, core.IsAuthorizationError(err))

	srv, err := f.svc.CreateServer(ctx, space.NewServer{Name: "Algebra", Description: "Linear"}, f.prof)
	require.NoError(t, err)
	assert.NotEmpty(t, srv.ID)
	assert.Len(t, srv.Code, 8)
	assert.Equal(t, f.prof.ID, srv.OwnerID)
	assert.Empty(t, srv.MemberIDs)
	assert.Equal(t, now, srv.CreatedAt)

	t.Run("code collisions are retried", func(t *testing.T) {
		repo := &collidingRepo{Repository: f.repo, collisions: 2}
		svc := space.NewService(repo, clock)
		srv, err := svc.CreateServer(ctx, space.NewServer{Name: "Physics"}, f.admin)
		require.NoError(t, err)
		require.Len(t, repo.codes, 3)
		assert.Equal(t, repo.codes[2], srv.Code)
	})

	t.Run("gives up", func(t *testing.T) {
		repo := &collidingRepo{Repository: f.repo, collisions: 100}
		svc := space.NewService(repo, clock)
		_, err := svc.CreateServer(ctx, space.NewServer{Name: "Physics"}, f.prof)
		assert.Equal(t, space.ErrCodeExists, errors.Cause(err))
		assert.Len(t, repo.codes, 5)
	})
}

func TestService_JoinAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	srv := testutil.CreateServer(t, f.repo, f.prof, "Algebra")
	other := testutil.CreateServer(t, f.repo, f.admin, "Physics")

	_, err := f.svc.JoinServer(ctx, "ZZZZZZZZ", f.alice)
	assert.Equal(t, space.ErrServerNotFound, err)

	joined, err := f.svc.JoinServer(ctx, strings.ToLower(srv.Code), f.alice)
	require.NoError(t, err)
	assert.Equal(t, []string{f.alice.ID}, joined.MemberIDs)

	again, err := f.svc.JoinServer(ctx, srv.Code, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []string{f.alice.ID}, again.MemberIDs, "joining twice is a no-op")

	owner, err := f.svc.JoinServer(ctx, srv.Code, f.prof)
	require.NoError(t, err)
	assert.Equal(t, []string{f.alice.ID}, owner.MemberIDs, "owners are not members")

	_, err = f.svc.GetServer(ctx, srv.ID, f.alice)
	assert.NoError(t, err)
	_, err = f.svc.GetServer(ctx, srv.ID, f.bob)
	assert.Equal(t, space.ErrServerNotFound, err)
	_, err = f.svc.GetServer(ctx, other.ID, f.admin)
	assert.NoError(t, err)

	list, err := f.svc.ListServers(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, srv.ID, list[0].ID)

	list, err = f.svc.ListServers(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListServers(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_Teams(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	srv := testutil.CreateServer(t, f.repo, f.prof, "Algebra", f.alice.ID, f.bob.ID)
	outsider := f.admin
	outsider.Roles = []string{user.RoleStudent}

	_, err := f.svc.CreateTeam(ctx, srv.ID, space.NewTeam{Name: "Red"}, outsider)
	assert.Equal(t, space.ErrServerNotFound, err)

	_, err = f.svc.CreateTeam(ctx, srv.ID, space.NewTeam{Name: "Red", MemberIDs: []string{outsider.ID}}, f.prof)
	assert.True(t, core.IsValidationError(err))

	byProf, err := f.svc.CreateTeam(ctx, srv.ID, space.NewTeam{Name: "Red", MemberIDs: []string{f.bob.ID}}, f.prof)
	require.NoError(t, err)
	assert.Equal(t, []string{f.bob.ID}, byProf.MemberIDs, "the owner is not added to the team")
	assert.Equal(t, f.prof.ID, byProf.CreatedBy)

	byAlice, err := f.svc.CreateTeam(ctx, srv.ID, space.NewTeam{Name: "Blue", MemberIDs: []string{f.alice.ID, f.bob.ID}}, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []string{f.alice.ID, f.bob.ID}, byAlice.MemberIDs, "students create teams they belong to")

	// adding members
	_, err = f.svc.AddTeamMember(ctx, byProf.ID, f.alice.ID, f.alice)
	assert.True(t, core.IsAuthorizationError(err), "alice is not in Red")

	red, err := f.svc.AddTeamMember(ctx, byProf.ID, f.alice.ID, f.bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.alice.ID, f.bob.ID}, red.MemberIDs)

	red, err = f.svc.AddTeamMember(ctx, byProf.ID, f.alice.ID, f.prof)
	require.NoError(t, err)
	assert.Len(t, red.MemberIDs, 2)

	_, err = f.svc.AddTeamMember(ctx, byProf.ID, outsider.ID, f.prof)
	assert.True(t, core.IsValidationError(err))
	_, err = f.svc.AddTeamMember(ctx, "lol", f.alice.ID, f.prof)
	assert.Equal(t, space.ErrTeamNotFound, err)
	_, err = f.svc.AddTeamMember(ctx, byProf.ID, f.alice.ID, outsider)
	assert.Equal(t, space.ErrTeamNotFound, err)

	// listing
	teams, err := f.svc.ListTeams(ctx, srv.ID, f.alice)
	require.NoError(t, err)
	assert.Len(t, teams, 2)
	_, err = f.svc.ListTeams(ctx, srv.ID, outsider)
	assert.Equal(t, space.ErrServerNotFound, err)

	mine, err := f.svc.ListTeamsForStudent(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
