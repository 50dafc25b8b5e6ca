package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/space"
)

type spaceRepository struct {
	db *spaceTable
}

var _ space.Repository = (*spaceRepository)(nil) // interface compliance check

func NewSpaceRepository(db *DB) *spaceRepository {
	return &spaceRepository{db: db.space}
}

func copyServer(srv *space.Server) space.Server {
	s := *srv
	s.MemberIDs = copyStrings(srv.MemberIDs)
	return s
}

func copyTeam(team *space.Team) space.Team {
	t := *team
	t.MemberIDs = copyStrings(team.MemberIDs)
	return t
}

func (repo *spaceRepository) CreateServer(_ context.Context, srv space.Server) (space.Server, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.servers {
		if s.Code == srv.Code {
			return space.Server{}, space.ErrCodeExists
		}
	}
	srv.ID = uuid.New().String()
	srv.MemberIDs = copyStrings(srv.MemberIDs)
	repo.db.servers[srv.ID] = &srv
	return copyServer(&srv), nil
}

func (repo *spaceRepository) GetServer(_ context.Context, id string) (space.Server, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if srv, ok := repo.db.servers[id]; ok {
		return copyServer(srv), nil
	}
	return space.Server{}, space.ErrServerNotFound
}

func (repo *spaceRepository) GetServerByCode(_ context.Context, code string) (space.Server, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, srv := range repo.db.servers {
		if srv.Code == code {
			return copyServer(srv), nil
		}
	}
	return space.Server{}, space.ErrServerNotFound
}

func (repo *spaceRepository) ListServers(_ context.Context, userID string) ([]space.Server, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	servers := make([]space.Server, 0)
	for _, srv := range repo.db.servers {
		if userID == "" || srv.IsOwner(userID) || srv.HasMember(userID) {
			servers = append(servers, copyServer(srv))
		}
	}
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].CreatedAt.Equal(servers[j].CreatedAt) {
			return servers[i].ID < servers[j].ID
		}
		return servers[i].CreatedAt.Before(servers[j].CreatedAt)
	})
	return servers, nil
}

func (repo *spaceRepository) AddServerMember(_ context.Context, serverID, userID string) (space.Server, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	srv, ok := repo.db.servers[serverID]
	if !ok {
		return space.Server{}, space.ErrServerNotFound
	}
	if !srv.HasMember(userID) {
		srv.MemberIDs = append(srv.MemberIDs, userID)
	}
	return copyServer(srv), nil
}

func (repo *spaceRepository) CreateTeam(_ context.Context, team space.Team) (space.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.servers[team.ServerID]; !ok {
		return space.Team{}, space.ErrServerNotFound
	}
	team.ID = uuid.New().String()
	team.MemberIDs = copyStrings(team.MemberIDs)
	repo.db.teams[team.ID] = &team
	return copyTeam(&team), nil
}

func (repo *spaceRepository) GetTeam(_ context.Context, id string) (space.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if team, ok := repo.db.teams[id]; ok {
		return copyTeam(team), nil
	}
	return space.Team{}, space.ErrTeamNotFound
}

func (repo *spaceRepository) ListTeams(_ context.Context, filter space.TeamFilter) ([]space.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	teams := make([]space.Team, 0)
	for _, team := range repo.db.teams {
		if len(filter.IDs) > 0 && !core.ContainsString(filter.IDs, team.ID) {
			continue
		}
		if filter.ServerID != "" && team.ServerID != filter.ServerID {
			continue
		}
		if filter.MemberID != "" && !team.HasMember(filter.MemberID) {
			continue
		}
		teams = append(teams, copyTeam(team))
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].ID < teams[j].ID
		}
		return teams[i].CreatedAt.Before(teams[j].CreatedAt)
	})
	return teams, nil
}

func (repo *spaceRepository) AddTeamMember(_ context.Context, teamID, userID string) (space.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	team, ok := repo.db.teams[teamID]
	if !ok {
		return space.Team{}, space.ErrTeamNotFound
	}
	if !team.HasMember(userID) {
		team.MemberIDs = append(team.MemberIDs, userID)
	}
	return copyTeam(team), nil
}
