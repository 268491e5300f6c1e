package tenancy

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cidadeplus/backend/internal/models"
)

// Identity is the closed set of authenticated principals the guard understands:
// GlobalStaff, ScopedStaff and Citizen. The unexported method seals the set.
type Identity interface {
	identity()
	Subject() uuid.UUID
}

// GlobalStaff may act on any city.
type GlobalStaff struct {
	UserID uuid.UUID
}

// ScopedStaff may act only on its home city. HomeCityID is nil when the assignment is missing.
type ScopedStaff struct {
	UserID     uuid.UUID
	HomeCityID *uuid.UUID
}

// Citizen has no admin capability.
type Citizen struct {
	UserID uuid.UUID
}

func (GlobalStaff) identity() {}
func (ScopedStaff) identity() {}
func (Citizen) identity()     {}

func (g GlobalStaff) Subject() uuid.UUID { return g.UserID }
func (s ScopedStaff) Subject() uuid.UUID { return s.UserID }
func (c Citizen) Subject() uuid.UUID     { return c.UserID }

// IdentityFor maps a stored role to an Identity.
func IdentityFor(userID uuid.UUID, role models.Role, homeCityID *uuid.UUID) Identity {
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return GlobalStaff{UserID: userID}
	case models.RoleModerator, models.RoleEditor:
		var home *uuid.UUID
		if homeCityID != nil && *homeCityID != uuid.Nil {
			id := *homeCityID
			home = &id
		}
		return ScopedStaff{UserID: userID, HomeCityID: home}
	default:
		return Citizen{UserID: userID}
	}
}

// ContextIdentity is the gin context key holding the caller's Identity.
const ContextIdentity = "identity"

// IdentityFromGin returns the identity set by the authentication middleware.
func IdentityFromGin(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(Identity)
	return id, ok && id != nil
}
