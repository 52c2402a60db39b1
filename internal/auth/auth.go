// Package auth maps user roles to the capabilities the web layer enforces.
package auth

import "fmt"

const (
	RoleMapper         = "mapper"
	RoleValidator      = "validator"
	RoleProjectManager = "project_manager"
	RoleAdmin          = "admin"
)

// ForbiddenError indicates the caller's role lacks a capability.
type ForbiddenError struct {
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

var roles = map[string]bool{
	RoleMapper:         true,
	RoleValidator:      true,
	RoleProjectManager: true,
	RoleAdmin:          true,
}

// KnownRole reports whether role is one of the four supported roles.
func KnownRole(role string) bool { return roles[role] }

// CanOverrideLock reports whether the role may force a transition on a task
// locked by someone else.
func CanOverrideLock(role string) bool {
	return role == RoleProjectManager || role == RoleAdmin
}

// CanManageProjects reports whether the role may create or modify
// organisations and projects and manage users.
func CanManageProjects(role string) bool {
	return role == RoleProjectManager || role == RoleAdmin
}

// CanValidate reports whether the role may take tasks through the validation
// states.
func CanValidate(role string) bool {
	return role == RoleValidator || role == RoleProjectManager || role == RoleAdmin
}
