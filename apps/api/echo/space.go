package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classync/classync/core/space"
)

type spaceApi struct {
	auth     *authenticator
	svc      *space.Service
	validate *validator.Validate
}

func registerSpaceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *space.Service,
	validate *validator.Validate,
) {
	api := spaceApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/servers", jwt)
	sg.POST("", api.createServer, facultyMiddleware())
	sg.GET("", api.listServers)
	sg.POST("/join", api.joinServer)
	sg.GET("/:id", api.retrieveServer)
	sg.POST("/:id/teams", api.createTeam)
	sg.GET("/:id/teams", api.listTeams)

	tg := g.Group("/teams", jwt)
	tg.GET("/mine", api.myTeams)
	tg.POST("/:id/members", api.addTeamMember)
}

func (api *spaceApi) createServer(ctx echo.Context) error {
	var data space.NewServer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewServer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	srv, err := api.svc.CreateServer(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating server")
	}
	return ctx.JSON(http.StatusCreated, srv)
}

func (api *spaceApi) listServers(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	servers, err := api.svc.ListServers(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing servers")
	}
	if servers == nil {
		servers = []space.Server{}
	}
	return ctx.JSON(http.StatusOK, servers)
}

func (api *spaceApi) joinServer(ctx echo.Context) error {
	var data space.JoinServer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinServer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	srv, err := api.svc.JoinServer(ctx.Request().Context(), data.Code, usr)
	if err != nil {
		return errors.Wrap(err, "joining server")
	}
	return ctx.JSON(http.StatusOK, srv)
}

func (api *spaceApi) retrieveServer(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	srv, err := api.svc.GetServer(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "finding server")
	}
	return ctx.JSON(http.StatusOK, srv)
}

func (api *spaceApi) createTeam(ctx echo.Context) error {
	var data space.NewTeam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	team, err := api.svc.CreateTeam(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating team")
	}
	return ctx.JSON(http.StatusCreated, team)
}

func (api *spaceApi) listTeams(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	teams, err := api.svc.ListTeams(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "listing teams")
	}
	return ctx.JSON(http.StatusOK, nonNilTeams(teams))
}

func (api *spaceApi) myTeams(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	teams, err := api.svc.ListTeamsForStudent(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing teams")
	}
	return ctx.JSON(http.StatusOK, nonNilTeams(teams))
}

func (api *spaceApi) addTeamMember(ctx echo.Context) error {
	var data space.AddTeamMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddTeamMember")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	team, err := api.svc.AddTeamMember(ctx.Request().Context(), ctx.Param("id"), data.UserID, usr)
	if err != nil {
		return errors.Wrap(err, "adding team member")
	}
	return ctx.JSON(http.StatusOK, team)
}

func nonNilTeams(teams []space.Team) []space.Team {
	if teams == nil {
		return []space.Team{}
	}
	return teams
}
