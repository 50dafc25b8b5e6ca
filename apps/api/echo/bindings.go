package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/classync/classync/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the "ordering" query param, e.g. `?ordering=-created_at,name`.
// fields not in allowed are ignored.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam), allowed...)
}

// timeParam parses an RFC3339 query param; a missing param is the zero time.
func timeParam(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, val)
}
