package space

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/user"
)

const maxCodeAttempts = 5

var (
	// errors
	ErrServerNotFound = core.NewNotFoundError("server not found")
	ErrTeamNotFound   = core.NewNotFoundError("team not found")
	ErrCodeExists     = errors.New("join code already in use")

	errNotMember = "user is not a member of this server"
)

type Repository interface {
	// CreateServer returns ErrCodeExists if srv.Code is already taken.
	CreateServer(ctx context.Context, srv Server) (Server, error)
	GetServer(ctx context.Context, id string) (Server, error)
	GetServerByCode(ctx context.Context, code string) (Server, error)
	// ListServers returns every server when userID is empty.
	ListServers(ctx context.Context, userID string) ([]Server, error)
	AddServerMember(ctx context.Context, serverID, userID string) (Server, error)
	CreateTeam(ctx context.Context, team Team) (Team, error)
	GetTeam(ctx context.Context, id string) (Team, error)
	ListTeams(ctx context.Context, filter TeamFilter) ([]Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string) (Team, error)
}

type Service struct {
	repo Repository
	now  core.Clock
}

func NewService(repo Repository, now core.Clock) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(now, "now"),
	).CheckAndPanic()

	return &Service{repo: repo, now: now}
}

// NewCode returns a random 8 characters join code.
func NewCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (svc *Service) CreateServer(ctx context.Context, ns NewServer, actor user.User) (Server, error) {
	if !actor.CanTeach() {
		return Server{}, core.NewAuthorizationError("only faculty can create servers")
	}

	srv := Server{
		Name:        ns.Name,
		Description: ns.Description,
		OwnerID:     actor.ID,
		MemberIDs:   []string{},
		CreatedAt:   svc.now().UTC(),
	}
	for i := 0; i < maxCodeAttempts; i++ {
		srv.Code = NewCode()
		created, err := svc.repo.CreateServer(ctx, srv)
		if err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrCodeExists {
			return Server{}, errors.Wrap(err, "creating server")
		}
	}
	return Server{}, errors.Wrap(ErrCodeExists, "generating join code")
}

// JoinServer adds actor to the server holding code. joining twice is a no-op.
func (svc *Service) JoinServer(ctx context.Context, code string, actor user.User) (Server, error) {
	srv, err := svc.repo.GetServerByCode(ctx, normalizeCode(code))
	if err != nil {
		return Server{}, err
	}
	if srv.IsOwner(actor.ID) || srv.HasMember(actor.ID) {
		return srv, nil
	}
	srv, err = svc.repo.AddServerMember(ctx, srv.ID, actor.ID)
	return srv, errors.Wrap(err, "adding server member")
}

// GetServer returns the server if actor can access it. a server actor cannot see is not found.
func (svc *Service) GetServer(ctx context.Context, id string, actor user.User) (Server, error) {
	srv, err := svc.repo.GetServer(ctx, id)
	if err != nil {
		return Server{}, err
	}
	if !srv.CanAccess(actor) {
		return Server{}, ErrServerNotFound
	}
	return srv, nil
}

// ListServers returns the servers actor owns or joined; admins get all of them.
func (svc *Service) ListServers(ctx context.Context, actor user.User) ([]Server, error) {
	userID := actor.ID
	if actor.IsAdmin() {
		userID = ""
	}
	return svc.repo.ListServers(ctx, userID)
}

func (svc *Service) CreateTeam(ctx context.Context, serverID string, nt NewTeam, actor user.User) (Team, error) {
	srv, err := svc.GetServer(ctx, serverID, actor)
	if err != nil {
		return Team{}, err
	}

	memberIDs := make([]string, 0, len(nt.MemberIDs)+1)
	if srv.HasMember(actor.ID) {
		// students create teams they belong to
		memberIDs = append(memberIDs, actor.ID)
	}
	for _, id := range nt.MemberIDs {
		if !srv.HasMember(id) {
			return Team{}, core.NewFieldValidationError("member_ids", errNotMember)
		}
		if !core.ContainsString(memberIDs, id) {
			memberIDs = append(memberIDs, id)
		}
	}

	team, err := svc.repo.CreateTeam(ctx, Team{
		ServerID:  srv.ID,
		Name:      nt.Name,
		MemberIDs: memberIDs,
		CreatedBy: actor.ID,
		CreatedAt: svc.now().UTC(),
	})
	return team, errors.Wrap(err, "creating team")
}

// AddTeamMember adds userID to the team; the server owner or a team member may do so.
func (svc *Service) AddTeamMember(ctx context.Context, teamID, userID string, actor user.User) (Team, error) {
	team, err := svc.repo.GetTeam(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	srv, err := svc.GetServer(ctx, team.ServerID, actor)
	if err != nil {
		if errors.Cause(err) == ErrServerNotFound {
			return Team{}, ErrTeamNotFound
		}
		return Team{}, err
	}
	if !(srv.CanManage(actor) || team.HasMember(actor.ID)) {
		return Team{}, core.NewAuthorizationError("only the server owner or a team member can add members")
	}
	if !srv.HasMember(userID) {
		return Team{}, core.NewFieldValidationError("user_id", errNotMember)
	}
	if team.HasMember(userID) {
		return team, nil
	}
	team, err = svc.repo.AddTeamMember(ctx, team.ID, userID)
	return team, errors.Wrap(err, "adding team member")
}

func (svc *Service) ListTeams(ctx context.Context, serverID string, actor user.User) ([]Team, error) {
	if _, err := svc.GetServer(ctx, serverID, actor); err != nil {
		return nil, err
	}
	return svc.repo.ListTeams(ctx, TeamFilter{ServerID: serverID})
}

// ListTeamsForStudent returns the teams actor belongs to.
func (svc *Service) ListTeamsForStudent(ctx context.Context, actor user.User) ([]Team, error) {
	return svc.repo.ListTeams(ctx, TeamFilter{MemberID: actor.ID})
}
