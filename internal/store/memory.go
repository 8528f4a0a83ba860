package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kubedeck/kubedeck/internal/permission"
)

// MemoryStore keeps permission groups in process memory. It backs the API
// when no database is configured and is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	groups groupSet
	nextID int
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(groupSet),
		nextID: 1,
		now:    time.Now,
	}
}

func (s *MemoryStore) CreateOrUpdatePermissionGroup(ctx context.Context, payload permission.PermissionGroupPayload) (*PermissionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.groups.upsert(payload, s.now(), &s.nextID)
	if err != nil {
		return nil, err
	}
	return clone(g), nil
}

func (s *MemoryStore) GetPermissionGroup(ctx context.Context, id int) (*PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(g), nil
}

func (s *MemoryStore) ListPermissionGroups(ctx context.Context, filters QueryFilters, pagination PaginationParams, sortOrder SortOrder) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.query(filters, pagination, sortOrder), nil
}

func (s *MemoryStore) DeletePermissionGroup(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)
	return nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// groupSet is the id-keyed group collection shared by the stores that do
// not have a query engine of their own.
type groupSet map[int]*PermissionGroup

// upsert inserts payload under a fresh id when its id is zero, and replaces
// the stored group otherwise. Names are unique regardless of case.
func (gs groupSet) upsert(payload permission.PermissionGroupPayload, now time.Time, nextID *int) (*PermissionGroup, error) {
	for id, g := range gs {
		if id != payload.ID && strings.EqualFold(g.Name, payload.Name) {
			return nil, ErrDuplicateName
		}
	}

	group := &PermissionGroup{PermissionGroupDTO: payload, UpdatedAt: now}
	group.RoleFilters = slices.Clone(payload.RoleFilters)
	if group.RoleFilters == nil {
		group.RoleFilters = []permission.APIRoleFilter{}
	}
	if payload.ID == 0 {
		group.ID = *nextID
		group.CreatedAt = now
		*nextID++
	} else {
		existing, ok := gs[payload.ID]
		if !ok {
			return nil, ErrNotFound
		}
		group.CreatedAt = existing.CreatedAt
	}
	gs[group.ID] = group
	return group, nil
}

func (gs groupSet) query(filters QueryFilters, pagination PaginationParams, sortOrder SortOrder) *QueryResult {
	matched := gs.sorted(filters.Search, sortOrder)
	result := &QueryResult{Groups: []*PermissionGroup{}, Total: len(matched)}
	start := min(max(pagination.Offset, 0), len(matched))
	end := min(start+pagination.limit(), len(matched))
	for _, g := range matched[start:end] {
		result.Groups = append(result.Groups, clone(g))
	}
	return result
}

// sorted returns the groups whose name contains search, ordered by name
// case-insensitively with the id as tie-break.
func (gs groupSet) sorted(search string, sortOrder SortOrder) []*PermissionGroup {
	search = strings.ToLower(search)
	matched := make([]*PermissionGroup, 0, len(gs))
	for _, g := range gs {
		if search != "" && !strings.Contains(strings.ToLower(g.Name), search) {
			continue
		}
		matched = append(matched, g)
	}
	slices.SortFunc(matched, func(a, b *PermissionGroup) int {
		c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		if c == 0 {
			c = a.ID - b.ID
		}
		if sortOrder == SortOrderDesc {
			return -c
		}
		return c
	})
	return matched
}

func clone(g *PermissionGroup) *PermissionGroup {
	out := *g
	out.RoleFilters = slices.Clone(g.RoleFilters)
	return &out
}
