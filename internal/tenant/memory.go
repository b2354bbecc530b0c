package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"minedesk.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Used by tests
// and local development; production runs on the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	orgs    map[string]Organization
	members map[string]Membership // key: userID + "/" + orgID
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:    make(map[string]Organization),
		members: make(map[string]Membership),
	}
}

func memberKey(userID, orgID string) string {
	return userID + "/" + orgID
}

func (s *InMemory) CreateOrganization(ctx context.Context, name string, metadata map[string]any) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	org := Organization{
		ID:        ids.New(),
		Name:      name,
		Metadata:  copyMetadata(metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orgs[org.ID] = org
	return org, nil
}

func (s *InMemory) GetOrganization(ctx context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	org.Metadata = copyMetadata(org.Metadata)
	return org, nil
}

func (s *InMemory) ListOrganizations(ctx context.Context) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		org.Metadata = copyMetadata(org.Metadata)
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) CreateMembership(ctx context.Context, m Membership) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[m.OrganizationID]; !ok {
		return Membership{}, ErrNotFound
	}
	key := memberKey(m.UserID, m.OrganizationID)
	if _, ok := s.members[key]; ok {
		return Membership{}, fmt.Errorf("%w: membership already exists", ErrConflict)
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.members[key] = m
	return m, nil
}

func (s *InMemory) GetMembership(ctx context.Context, userID, orgID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey(userID, orgID)]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemory) ListMemberships(ctx context.Context, orgID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.members {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *InMemory) UpdateMembership(ctx context.Context, userID, orgID string, upd MembershipUpdate) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey(userID, orgID)
	m, ok := s.members[key]
	if !ok {
		return Membership{}, ErrNotFound
	}
	if upd.Role != nil {
		m.Role = *upd.Role
	}
	if upd.Status != nil {
		m.Status = *upd.Status
	}
	m.UpdatedAt = time.Now().UTC()
	s.members[key] = m
	return m, nil
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
