package service

import "erequisition/internal/model"

// Actor is the authenticated user performing an operation. It is passed
// explicitly into every workflow call.
type Actor struct {
	ID   uint
	Role model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func (a Actor) requireAdmin(operation string) error {
	if !a.IsAdmin() {
		return newError(KindUnauthorized, "only admins can %s", operation)
	}
	return nil
}
