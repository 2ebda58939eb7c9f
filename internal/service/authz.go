package service

import (
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

// RequireRole fails with AUTHORIZATION_DENIED unless the actor holds one of roles.
func RequireRole(actor models.Actor, roles ...models.UserRole) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrAuthorizationDenied, "role "+string(actor.Role)+" may not perform this operation")
}

// requireFamilyAccess allows admins and the family that owns the resource.
func requireFamilyAccess(actor models.Actor, familyID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.RoleFamily && actor.FamilyID != 0 && actor.FamilyID == familyID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrAuthorizationDenied, "resource belongs to another family")
}
