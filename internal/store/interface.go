package store

import (
	"context"
	"errors"
	"time"

	"github.com/kubedeck/kubedeck/internal/permission"
)

var (
	ErrNotFound      = errors.New("permission group not found")
	ErrDuplicateName = errors.New("a permission group with this name already exists")
)

// QueryFilters represents filters for listing permission groups.
type QueryFilters struct {
	// Search matches group names case-insensitively by substring.
	Search string
}

// PaginationParams represents pagination parameters.
type PaginationParams struct {
	Limit  int // Number of results per page
	Offset int // Offset for pagination
}

// SortOrder represents sort order by name.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// Pagination limits.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

func (p PaginationParams) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// PermissionGroup is a stored permission group.
type PermissionGroup struct {
	permission.PermissionGroupDTO
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QueryResult represents a paginated query result.
type QueryResult struct {
	Groups []*PermissionGroup
	Total  int // Total number of groups matching the query (before pagination)
}

// Store defines the interface for persisting permission groups.
type Store interface {
	// CreateOrUpdatePermissionGroup inserts the group when its id is zero and
	// replaces the stored group otherwise.
	CreateOrUpdatePermissionGroup(ctx context.Context, payload permission.PermissionGroupPayload) (*PermissionGroup, error)

	// GetPermissionGroup retrieves a single group by id.
	GetPermissionGroup(ctx context.Context, id int) (*PermissionGroup, error)

	// ListPermissionGroups lists groups with filters, pagination, and sorting.
	ListPermissionGroups(ctx context.Context, filters QueryFilters, pagination PaginationParams, sortOrder SortOrder) (*QueryResult, error)

	// DeletePermissionGroup removes a group.
	DeletePermissionGroup(ctx context.Context, id int) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
