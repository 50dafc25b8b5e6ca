package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/services/realtime"
)

const streamKeepAlive = 30 * time.Second

type notificationApi struct {
	auth     *authenticator
	svc      *notification.Service
	hub      *realtime.Hub
	validate *validator.Validate
	logger   core.Logger
}

func registerNotificationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *notification.Service,
	hub *realtime.Hub,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := notificationApi{
		auth:     auth,
		svc:      svc,
		hub:      hub,
		validate: validate,
		logger:   logger,
	}

	ng := g.Group("/notifications")
	ng.GET("", api.list, jwt)
	ng.POST("/read-all", api.markAllRead, jwt)
	ng.POST("/:id/read", api.markRead, jwt)
	ng.GET("/stream", api.stream, auth.queryJWT())
}

func (api *notificationApi) list(ctx echo.Context) error {
	var query notification.FeedQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to FeedQuery")
	}
	if err := api.validate.Struct(query); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	notifs, err := api.svc.List(ctx.Request().Context(), usr.ID, query)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cnt, err := api.svc.MarkAllRead(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, MarkReadResponse{Count: cnt})
}

// stream sends the notifications of the user as server-sent events until the client goes away.
func (api *notificationApi) stream(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	notifs, unsubscribe := api.hub.Subscribe(usr.ID)
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-keepAlive.C:
			if _, err = fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case n, ok := <-notifs:
			if !ok {
				return nil
			}
			data, err := json.Marshal(n)
			if err != nil {
				api.logger.Error("encoding notification", errors.Wrap(err, n.ID), usr)
				continue
			}
			if _, err = fmt.Fprintf(res, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Type, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

type MarkReadResponse struct {
	Count int `json:"count"`
}
