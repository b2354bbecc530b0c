package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store describes persistence operations required by the tenant subsystem.
type Store interface {
	CreateOrganization(ctx context.Context, name string, metadata map[string]any) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)

	CreateMembership(ctx context.Context, m Membership) (Membership, error)
	GetMembership(ctx context.Context, userID, orgID string) (Membership, error)
	ListMemberships(ctx context.Context, orgID string) ([]Membership, error)
	UpdateMembership(ctx context.Context, userID, orgID string, upd MembershipUpdate) (Membership, error)
}

// Service implements organization lifecycle and the membership gate.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("tenant store is required")
	}
	return &Service{store: store}, nil
}

// Authorize is the membership gate: it resolves the unique membership for the
// (user, organization) pair and denies access unless it exists and is active.
// The returned membership carries the role for downstream checks. Pure read.
func (s *Service) Authorize(ctx context.Context, userID, orgID string) (Membership, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Membership{}, ErrOrganizationRequired
	}
	if userID == "" {
		return Membership{}, ErrNotAMember
	}
	m, err := s.store.GetMembership(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Membership{}, ErrNotAMember
		}
		return Membership{}, err
	}
	if !m.Active() {
		return Membership{}, ErrNotAMember
	}
	return m, nil
}

// CreateOrganization creates the organization and its owner membership. The two
// writes are sequential and not atomic: a membership failure leaves the
// organization row without an owner.
func (s *Service) CreateOrganization(ctx context.Context, name, ownerUserID string, metadata map[string]any) (Organization, Membership, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, Membership{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return Organization{}, Membership{}, fmt.Errorf("%w: owner user id is required", ErrInvalidInput)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	org, err := s.store.CreateOrganization(ctx, name, metadata)
	if err != nil {
		return Organization{}, Membership{}, err
	}
	owner, err := s.store.CreateMembership(ctx, Membership{
		UserID:         ownerUserID,
		OrganizationID: org.ID,
		Role:           RoleOwner,
		Status:         MemberActive,
	})
	if err != nil {
		return Organization{}, Membership{}, fmt.Errorf("create owner membership for organization %s: %w", org.ID, err)
	}
	return org, owner, nil
}

// ListOrganizations returns the organization directory. Tenant-scoped data
// stays behind the membership gate; only the top-level org rows are listed.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// GetOrganization fetches a single organization.
func (s *Service) GetOrganization(ctx context.Context, id string) (Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Organization{}, ErrOrganizationRequired
	}
	return s.store.GetOrganization(ctx, id)
}

// AddMember registers a user in the organization. Role defaults to miner,
// status defaults to invited.
func (s *Service) AddMember(ctx context.Context, orgID, userID string, role Role, status MemberStatus) (Membership, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Membership{}, ErrOrganizationRequired
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Membership{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if role == "" {
		role = DefaultMemberRole
	}
	if _, ok := validRoles[role]; !ok {
		return Membership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if status == "" {
		status = MemberInvited
	}
	if _, err := ParseMemberStatus(string(status)); err != nil {
		return Membership{}, err
	}
	return s.store.CreateMembership(ctx, Membership{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		Status:         status,
	})
}

// ListMembers returns every membership of the organization, including invited
// and disabled rows.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, ErrOrganizationRequired
	}
	return s.store.ListMemberships(ctx, orgID)
}

// UpdateMember changes role and/or status of an existing membership.
func (s *Service) UpdateMember(ctx context.Context, orgID, userID string, upd MembershipUpdate) (Membership, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" {
		return Membership{}, ErrOrganizationRequired
	}
	if userID == "" {
		return Membership{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Role == nil && upd.Status == nil {
		return Membership{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Role != nil {
		role, err := ParseRole(string(*upd.Role))
		if err != nil {
			return Membership{}, err
		}
		upd.Role = &role
	}
	if upd.Status != nil {
		status, err := ParseMemberStatus(string(*upd.Status))
		if err != nil {
			return Membership{}, err
		}
		upd.Status = &status
	}
	return s.store.UpdateMembership(ctx, userID, orgID, upd)
}
