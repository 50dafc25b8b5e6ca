package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/classync/classync/core/space"
)

const (
	selectServers = `
		SELECT s.id, s.name, s.description, s.code, s.owner_id, s.created_at,
			COALESCE(ARRAY(SELECT m.user_id::text FROM server_member m WHERE m.server_id = s.id ORDER BY m.joined_at, m.user_id), '{}') AS member_ids
		FROM server s`
	selectTeams = `
		SELECT t.id, t.server_id, t.name, t.created_by, t.created_at,
			COALESCE(ARRAY(SELECT m.user_id::text FROM team_member m WHERE m.team_id = t.id ORDER BY m.added_at, m.user_id), '{}') AS member_ids
		FROM team t`
)

type serverRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Code        string         `db:"code"`
	OwnerID     string         `db:"owner_id"`
	CreatedAt   time.Time      `db:"created_at"`
	MemberIDs   pq.StringArray `db:"member_ids"`
}

func (r serverRow) server() space.Server {
	return space.Server{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Code:        r.Code,
		OwnerID:     r.OwnerID,
		MemberIDs:   nonNilStrings(r.MemberIDs),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type teamRow struct {
	ID        string         `db:"id"`
	ServerID  string         `db:"server_id"`
	Name      string         `db:"name"`
	CreatedBy string         `db:"created_by"`
	CreatedAt time.Time      `db:"created_at"`
	MemberIDs pq.StringArray `db:"member_ids"`
}

func (r teamRow) team() space.Team {
	return space.Team{
		ID:        r.ID,
		ServerID:  r.ServerID,
		Name:      r.Name,
		MemberIDs: nonNilStrings(r.MemberIDs),
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type spaceRepository struct {
	db *sqlx.DB
}

var _ space.Repository = (*spaceRepository)(nil) // interface compliance check

func NewSpaceRepository(db *sqlx.DB) *spaceRepository {
	return &spaceRepository{db: db}
}

func (repo *spaceRepository) CreateServer(ctx context.Context, srv space.Server) (space.Server, error) {
	srv.ID = newID()
	srv.CreatedAt = srv.CreatedAt.UTC()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO server (id, name, description, code, owner_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			srv.ID, srv.Name, srv.Description, srv.Code, srv.OwnerID, srv.CreatedAt)
		if err != nil {
			if code, constraint := pqErrorCode(err); code == uniqueViolation && constraint == "server_code_key" {
				return space.ErrCodeExists
			}
			return errors.Wrap(err, "inserting server")
		}
		for _, uid := range srv.MemberIDs {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO server_member (server_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, srv.ID, uid); err != nil {
				return errors.Wrap(err, "inserting server member")
			}
		}
		return nil
	})
	if err != nil {
		return space.Server{}, err
	}
	srv.MemberIDs = nonNilStrings(srv.MemberIDs)
	return srv, nil
}

func (repo *spaceRepository) getServer(ctx context.Context, clause string, arg interface{}) (space.Server, error) {
	var row serverRow
	if err := repo.db.GetContext(ctx, &row, selectServers+" WHERE "+clause, arg); err != nil {
		if err == sql.ErrNoRows {
			return space.Server{}, space.ErrServerNotFound
		}
		return space.Server{}, errors.Wrap(err, "finding server")
	}
	return row.server(), nil
}

func (repo *spaceRepository) GetServer(ctx context.Context, id string) (space.Server, error) {
	if !isUUID(id) {
		return space.Server{}, space.ErrServerNotFound
	}
	return repo.getServer(ctx, "s.id = $1", id)
}

func (repo *spaceRepository) GetServerByCode(ctx context.Context, code string) (space.Server, error) {
	return repo.getServer(ctx, "s.code = $1", code)
}

func (repo *spaceRepository) ListServers(ctx context.Context, userID string) ([]space.Server, error) {
	var w where
	if userID != "" {
		if !isUUID(userID) {
			return []space.Server{}, nil
		}
		w.add("(s.owner_id = ? OR EXISTS (SELECT 1 FROM server_member m WHERE m.server_id = s.id AND m.user_id = ?))", userID, userID)
	}

	var rows []serverRow
	q := repo.db.Rebind(selectServers + w.String() + " ORDER BY s.created_at, s.id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing servers")
	}
	servers := make([]space.Server, 0, len(rows))
	for _, r := range rows {
		servers = append(servers, r.server())
	}
	return servers, nil
}

func (repo *spaceRepository) AddServerMember(ctx context.Context, serverID, userID string) (space.Server, error) {
	if !isUUID(serverID) {
		return space.Server{}, space.ErrServerNotFound
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO server_member (server_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, serverID, userID)
	if err != nil {
		if code, _ := pqErrorCode(err); code == foreignKeyViolation {
			return space.Server{}, space.ErrServerNotFound
		}
		return space.Server{}, errors.Wrap(err, "adding server member")
	}
	return repo.GetServer(ctx, serverID)
}

func (repo *spaceRepository) CreateTeam(ctx context.Context, team space.Team) (space.Team, error) {
	team.ID = newID()
	team.CreatedAt = team.CreatedAt.UTC()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO team (id, server_id, name, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
			team.ID, team.ServerID, team.Name, team.CreatedBy, team.CreatedAt)
		if err != nil {
			if code, _ := pqErrorCode(err); code == foreignKeyViolation {
				return space.ErrServerNotFound
			}
			return errors.Wrap(err, "inserting team")
		}
		for _, uid := range team.MemberIDs {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO team_member (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, team.ID, uid); err != nil {
				return errors.Wrap(err, "inserting team member")
			}
		}
		return nil
	})
	if err != nil {
		return space.Team{}, err
	}
	team.MemberIDs = nonNilStrings(team.MemberIDs)
	return team, nil
}

func (repo *spaceRepository) GetTeam(ctx context.Context, id string) (space.Team, error) {
	if !isUUID(id) {
		return space.Team{}, space.ErrTeamNotFound
	}
	var row teamRow
	if err := repo.db.GetContext(ctx, &row, selectTeams+" WHERE t.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return space.Team{}, space.ErrTeamNotFound
		}
		return space.Team{}, errors.Wrap(err, "finding team")
	}
	return row.team(), nil
}

func (repo *spaceRepository) ListTeams(ctx context.Context, filter space.TeamFilter) ([]space.Team, error) {
	var w where
	if filter.IDs != nil {
		w.add("t.id::text = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.ServerID != "" {
		w.add("t.server_id::text = ?", filter.ServerID)
	}
	if filter.MemberID != "" {
		w.add("EXISTS (SELECT 1 FROM team_member m WHERE m.team_id = t.id AND m.user_id::text = ?)", filter.MemberID)
	}

	var rows []teamRow
	q := repo.db.Rebind(selectTeams + w.String() + " ORDER BY t.created_at, t.id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing teams")
	}
	teams := make([]space.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.team())
	}
	return teams, nil
}

func (repo *spaceRepository) AddTeamMember(ctx context.Context, teamID, userID string) (space.Team, error) {
	if !isUUID(teamID) {
		return space.Team{}, space.ErrTeamNotFound
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO team_member (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, teamID, userID)
	if err != nil {
		if code, _ := pqErrorCode(err); code == foreignKeyViolation {
			return space.Team{}, space.ErrTeamNotFound
		}
		return space.Team{}, errors.Wrap(err, "adding team member")
	}
	return repo.GetTeam(ctx, teamID)
}
