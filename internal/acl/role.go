// Package acl evaluates calendar access against the role hierarchy.
package acl

import (
	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// Role is a position in the access hierarchy. Higher values grant more.
type Role int

const (
	RoleNone Role = iota
	RoleFreeBusyReader
	RoleReader
	RoleWriter
	RoleOwner
)

var roleNames = map[Role]string{
	RoleFreeBusyReader: models.RoleFreeBusyReader,
	RoleReader:         models.RoleReader,
	RoleWriter:         models.RoleWriter,
	RoleOwner:          models.RoleOwner,
}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleNone, apperr.Validation("invalid role %q", s)
}

// String returns the stored form of the role, or "none".
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "none"
}

// Satisfies reports whether r grants at least required. RoleNone never does.
func (r Role) Satisfies(required Role) bool {
	return r != RoleNone && r >= required
}
