package space

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/user"
)

// Server is a course or project space owned by a faculty member; students join it with its Code.
type Server struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	OwnerID     string    `json:"owner_id"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (s Server) IsOwner(userID string) bool { return s.OwnerID == userID }

func (s Server) HasMember(userID string) bool { return core.ContainsString(s.MemberIDs, userID) }

// CanAccess reports whether usr may see the server and its content.
func (s Server) CanAccess(usr user.User) bool {
	return usr.IsAdmin() || s.IsOwner(usr.ID) || s.HasMember(usr.ID)
}

// CanManage reports whether usr may change the server and its content.
func (s Server) CanManage(usr user.User) bool {
	return usr.IsAdmin() || s.IsOwner(usr.ID)
}

// Team is a group of students of a Server.
type Team struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"server_id"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"member_ids"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (t Team) HasMember(userID string) bool { return core.ContainsString(t.MemberIDs, userID) }

// TeamFilter applies AND operation on its non-empty fields.
type TeamFilter struct {
	IDs      []string
	ServerID string
	MemberID string
}

type NewServer struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

func (ns *NewServer) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

type JoinServer struct {
	Code string `json:"code" validate:"required,joincode"`
}

func (js *JoinServer) Validate(validate *validator.Validate) error {
	js.Code = normalizeCode(js.Code)
	return validate.Struct(js)
}

type NewTeam struct {
	Name      string   `json:"name" validate:"required,notblank,max=100"`
	MemberIDs []string `json:"member_ids" validate:"omitempty,dive,required"`
}

func (nt *NewTeam) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.MemberIDs = core.CleanStrings(nt.MemberIDs)
	return validate.Struct(nt)
}

type AddTeamMember struct {
	UserID string `json:"user_id" validate:"required"`
}

func (am *AddTeamMember) Validate(validate *validator.Validate) error {
	am.UserID = core.CleanString(am.UserID)
	return validate.Struct(am)
}
