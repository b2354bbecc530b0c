package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrOrganizationRequired means the caller supplied no organization context
	// at all. Treated as a client error, not a denial.
	ErrOrganizationRequired = errors.New("tenant: organization id is required")

	// ErrNotAMember means the caller has no active membership in the
	// organization. Absent and non-active memberships are indistinguishable to
	// the caller.
	ErrNotAMember = errors.New("tenant: not a member of this organization")

	// ErrInsufficientPermissions means the caller is a member but the role does
	// not allow the requested operation.
	ErrInsufficientPermissions = errors.New("tenant: insufficient permissions")

	ErrNotFound     = errors.New("tenant: not found")
	ErrConflict     = errors.New("tenant: resource conflict")
	ErrInvalidInput = errors.New("tenant: invalid input")
)

// Role is the privilege level a membership grants inside one organization.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleMiner      Role = "miner"
	RoleViewer     Role = "viewer"
)

// DefaultMemberRole is assigned when an admin adds a member without naming a role.
const DefaultMemberRole = RoleMiner

var validRoles = map[Role]struct{}{
	RoleOwner:      {},
	RoleAdmin:      {},
	RoleSupervisor: {},
	RoleMiner:      {},
	RoleViewer:     {},
}

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validRoles[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// MemberStatus is the lifecycle state of a membership. Removal is modelled as a
// transition to disabled; rows are never hard-deleted.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInvited  MemberStatus = "invited"
	MemberDisabled MemberStatus = "disabled"
)

// ParseMemberStatus normalizes and validates a membership status string.
func ParseMemberStatus(raw string) (MemberStatus, error) {
	status := MemberStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case MemberActive, MemberInvited, MemberDisabled:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown member status %q", ErrInvalidInput, raw)
}

// Organization is the unit of data isolation; every domain record belongs to
// exactly one organization.
type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Membership binds one user to one organization with a role and lifecycle
// status. At most one membership exists per (user, organization) pair.
type Membership struct {
	UserID         string       `json:"user_id"`
	OrganizationID string       `json:"organization_id"`
	Role           Role         `json:"role"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Active reports whether the membership currently grants access.
func (m Membership) Active() bool {
	return m.Status == MemberActive
}

// HasRole reports whether the membership's role is in the allow-list.
func (m Membership) HasRole(allowed ...Role) bool {
	for _, role := range allowed {
		if m.Role == role {
			return true
		}
	}
	return false
}

// CanActOn reports whether the member may act on a resource created by
// creatorUserID: admins and owners always may, and the original creator may
// regardless of role.
func (m Membership) CanActOn(creatorUserID string) bool {
	if m.HasRole(RoleAdmin, RoleOwner) {
		return true
	}
	return creatorUserID != "" && m.UserID == creatorUserID
}

// MembershipUpdate carries optional role/status changes.
type MembershipUpdate struct {
	Role   *Role
	Status *MemberStatus
}
