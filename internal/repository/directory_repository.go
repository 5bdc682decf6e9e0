package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository exposes read-only organization directory lookups backing
// scope resolution.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository instantiates the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ActiveUserIDs returns the ids of the organization's users, ordered for
// deterministic downstream computation. Inactive users are excluded unless
// includeInactive is set.
func (r *DirectoryRepository) ActiveUserIDs(ctx context.Context, organizationID string, includeInactive bool) ([]string, error) {
	query := "SELECT id FROM org_users WHERE organization_id = $1"
	if !includeInactive {
		query += " AND active = TRUE"
	}
	query += " ORDER BY id ASC"

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, organizationID); err != nil {
		return nil, fmt.Errorf("query org users: %w", err)
	}
	return ids, nil
}

// TeamExists reports whether the team belongs to the organization.
func (r *DirectoryRepository) TeamExists(ctx context.Context, organizationID, teamID string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(1) FROM teams WHERE id = $1 AND organization_id = $2", teamID, organizationID); err != nil {
		return false, fmt.Errorf("query team: %w", err)
	}
	return count > 0, nil
}

// TeamUserIDs returns the ids of users currently assigned to the team.
func (r *DirectoryRepository) TeamUserIDs(ctx context.Context, organizationID, teamID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids,
		"SELECT id FROM org_users WHERE organization_id = $1 AND team_id = $2 AND active = TRUE ORDER BY id ASC",
		organizationID, teamID); err != nil {
		return nil, fmt.Errorf("query team users: %w", err)
	}
	return ids, nil
}

// TeamIDs returns every team id in the organization, ordered for deterministic
// backfill iteration.
func (r *DirectoryRepository) TeamIDs(ctx context.Context, organizationID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids,
		"SELECT id FROM teams WHERE organization_id = $1 ORDER BY id ASC", organizationID); err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	return ids, nil
}

// UserExists reports whether the user belongs to the organization.
func (r *DirectoryRepository) UserExists(ctx context.Context, organizationID, userID string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(1) FROM org_users WHERE id = $1 AND organization_id = $2", userID, organizationID); err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return count > 0, nil
}
