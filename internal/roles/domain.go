package roles

import (
	"time"

	"github.com/scriptassist/masterapp/internal/permissions"
)

// RoleStatus is the role lifecycle state.
type RoleStatus string

const (
	StatusActive   RoleStatus = "active"
	StatusInactive RoleStatus = "inactive"
	StatusBlocked  RoleStatus = "blocked"
	StatusPending  RoleStatus = "pending"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s RoleStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusBlocked, StatusPending:
		return true
	}
	return false
}

// CanTransition encodes the status machine: pending → active ⇄ inactive,
// active/inactive → blocked, blocked → active. Re-applying the current
// status is a no-op and always allowed.
func CanTransition(from, to RoleStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusActive:
		return from == StatusPending || from == StatusInactive || from == StatusBlocked
	case StatusInactive:
		return from == StatusActive
	case StatusBlocked:
		return from == StatusActive || from == StatusInactive
	default:
		return false
	}
}

// Role groups a set of permission references. Primary roles are seed-only
// and can never be deleted.
type Role struct {
	ID              int64                    `json:"id"`
	Name            string                   `json:"name"`
	Slug            string                   `json:"slug"`
	Description     string                   `json:"description"`
	Status          RoleStatus               `json:"status"`
	RoleType        string                   `json:"role_type"`
	IsPrimary       bool                     `json:"is_primary"`
	PermissionCount int                      `json:"permission_count"`
	Permissions     []permissions.Permission `json:"permissions,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	DeletedAt       *time.Time               `json:"deleted_at,omitempty"`
}
