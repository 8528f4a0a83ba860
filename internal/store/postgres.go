package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/permission"
)

const uniqueViolation = "23505"

// PostgreSQLStore implements the Store interface using PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates a new PostgreSQL store and initializes the database schema.
func NewPostgreSQLStore(connectionString string) (*PostgreSQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	klog.Info("PostgreSQL store initialized successfully")
	return store, nil
}

// initSchema creates the permission_groups table if it doesn't exist.
func (s *PostgreSQLStore) initSchema(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS permission_groups (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		role_filters JSONB NOT NULL DEFAULT '[]'::jsonb,
		super_admin BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_permission_groups_name ON permission_groups(LOWER(name));
	CREATE INDEX IF NOT EXISTS idx_permission_groups_role_filters_gin ON permission_groups USING GIN (role_filters);
	`
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	klog.V(2).Info("Database schema initialized")
	return nil
}

// CreateOrUpdatePermissionGroup persists a permission group payload.
func (s *PostgreSQLStore) CreateOrUpdatePermissionGroup(ctx context.Context, payload permission.PermissionGroupPayload) (*PermissionGroup, error) {
	filters := payload.RoleFilters
	if filters == nil {
		filters = []permission.APIRoleFilter{}
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal role filters: %w", err)
	}

	var row pgx.Row
	if payload.ID == 0 {
		row = s.pool.QueryRow(ctx, `
			INSERT INTO permission_groups (name, description, role_filters, super_admin)
			VALUES ($1, $2, $3, $4)
			RETURNING id, name, description, role_filters, super_admin, created_at, updated_at
		`, payload.Name, payload.Description, filtersJSON, payload.SuperAdmin)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE permission_groups
			SET name = $2, description = $3, role_filters = $4, super_admin = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING id, name, description, role_filters, super_admin, created_at, updated_at
		`, payload.ID, payload.Name, payload.Description, filtersJSON, payload.SuperAdmin)
	}

	group, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save permission group %q: %w", payload.Name, mapError(err))
	}
	return group, nil
}

// GetPermissionGroup retrieves a single permission group by id.
func (s *PostgreSQLStore) GetPermissionGroup(ctx context.Context, id int) (*PermissionGroup, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, role_filters, super_admin, created_at, updated_at
		FROM permission_groups
		WHERE id = $1
	`, id)
	group, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get permission group %d: %w", id, mapError(err))
	}
	return group, nil
}

// ListPermissionGroups lists permission groups ordered by name.
func (s *PostgreSQLStore) ListPermissionGroups(ctx context.Context, filters QueryFilters, pagination PaginationParams, sortOrder SortOrder) (*QueryResult, error) {
	whereSQL := ""
	args := []interface{}{}
	argIdx := 1
	if filters.Search != "" {
		whereSQL = fmt.Sprintf(`WHERE name ILIKE $%d ESCAPE '\'`, argIdx)
		args = append(args, "%"+escapeLike(filters.Search)+"%")
		argIdx++
	}

	orderSQL := "ASC"
	if sortOrder == SortOrderDesc {
		orderSQL = "DESC"
	}

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM permission_groups %s", whereSQL), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count permission groups: %w", err)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, name, description, role_filters, super_admin, created_at, updated_at
		FROM permission_groups
		%s
		ORDER BY LOWER(name) %s, id
		LIMIT $%d OFFSET $%d
	`, whereSQL, orderSQL, argIdx, argIdx+1)
	args = append(args, pagination.limit(), pagination.Offset)

	rows, err := s.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission groups: %w", err)
	}
	defer rows.Close()

	groups := []*PermissionGroup{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryResult{Groups: groups, Total: total}, nil
}

// DeletePermissionGroup removes a permission group.
func (s *PostgreSQLStore) DeletePermissionGroup(ctx context.Context, id int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permission_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission group %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete permission group %d: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgreSQLStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		klog.Info("PostgreSQL store closed")
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *PostgreSQLStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanGroup scans a single group from a pgx.Row or pgx.Rows.
func scanGroup(row interface {
	Scan(dest ...interface{}) error
}) (*PermissionGroup, error) {
	var (
		group       PermissionGroup
		filtersJSON []byte
	)
	err := row.Scan(
		&group.ID, &group.Name, &group.Description, &filtersJSON,
		&group.SuperAdmin, &group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	group.RoleFilters = []permission.APIRoleFilter{}
	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &group.RoleFilters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role filters: %w", err)
		}
	}
	return &group, nil
}

// mapError turns driver errors into store sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateName
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
