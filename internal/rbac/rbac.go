// Package rbac maps project membership roles to timeline permissions.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	// ActionView guards the read endpoints (overview, load).
	ActionView Action = "view"
	// ActionEdit guards save and create.
	ActionEdit Action = "edit"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionView || action == ActionEdit
	case RoleViewer:
		return action == ActionView
	default:
		return false
	}
}
