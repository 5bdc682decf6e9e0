package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

// DirectoryRepository describes the directory lookups scope resolution needs.
type DirectoryRepository interface {
	ActiveUserIDs(ctx context.Context, organizationID string, includeInactive bool) ([]string, error)
	TeamExists(ctx context.Context, organizationID, teamID string) (bool, error)
	TeamUserIDs(ctx context.Context, organizationID, teamID string) ([]string, error)
	UserExists(ctx context.Context, organizationID, userID string) (bool, error)
}

// ScopeService validates and normalises a (scope, entityId) pair into the
// concrete set of user ids a metric is computed over. Pure read, no side
// effects.
type ScopeService struct {
	directory DirectoryRepository
	logger    *zap.Logger
}

// NewScopeService constructs the scope resolver.
func NewScopeService(directory DirectoryRepository, logger *zap.Logger) *ScopeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScopeService{directory: directory, logger: logger}
}

// ResolveOptions tunes resolution behaviour.
type ResolveOptions struct {
	IncludeInactive bool
}

// Resolve returns the ordered user-id population for the scope. Organization
// scope must arrive without an entity id; team and user scopes require one.
// Violations are rejected before any computation happens.
func (s *ScopeService) Resolve(ctx context.Context, organizationID string, scope models.ScopeType, entityID string, opts ResolveOptions) ([]string, error) {
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidScope, fmt.Sprintf("unknown scope %q", scope))
	}
	if scope.RequiresEntity() && entityID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidScope, fmt.Sprintf("%s scope requires an id", scope))
	}
	if scope == models.ScopeOrganization && entityID != "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidScope, "organization scope does not accept an id")
	}

	switch scope {
	case models.ScopeOrganization:
		ids, err := s.directory.ActiveUserIDs(ctx, organizationID, opts.IncludeInactive)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "resolve organization scope")
		}
		return ids, nil

	case models.ScopeTeam:
		exists, err := s.directory.TeamExists(ctx, organizationID, entityID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "resolve team scope")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrInvalidScope, fmt.Sprintf("team %s not found in organization", entityID))
		}
		ids, err := s.directory.TeamUserIDs(ctx, organizationID, entityID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "resolve team scope")
		}
		return ids, nil

	case models.ScopeUser:
		exists, err := s.directory.UserExists(ctx, organizationID, entityID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "resolve user scope")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrInvalidScope, fmt.Sprintf("user %s not found in organization", entityID))
		}
		return []string{entityID}, nil
	}

	return nil, appErrors.ErrInvalidScope
}
