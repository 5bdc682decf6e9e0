package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

// EventRepository exposes read-only views over the platform's event tables.
// The engine never writes these; check-in and review instants are set once at
// submission and treated as immutable here.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository instantiates the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Checkins returns check-ins whose nominal week falls inside [from, to],
// optionally restricted to a user population. An empty userIDs slice means no
// user filter.
func (r *EventRepository) Checkins(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.CheckinRecord, error) {
	query := `SELECT id, organization_id, user_id, mood, week_of, submitted_at, due_at
        FROM checkins
        WHERE organization_id = ? AND week_of >= ? AND week_of <= ?`
	args := []interface{}{organizationID, from, to}
	if len(userIDs) > 0 {
		query += " AND user_id IN (?)"
		args = append(args, userIDs)
	}
	query += " ORDER BY week_of ASC, user_id ASC"

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build checkins query: %w", err)
	}

	var records []models.CheckinRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("query checkins: %w", err)
	}
	return records, nil
}

// CheckinsDueBetween returns check-ins whose due instant falls inside
// [from, to], optionally restricted to a user population. Compliance reads
// use this instead of the nominal week so a check-in owed near a range
// boundary is attributed by when it was due, not which week it labels.
func (r *EventRepository) CheckinsDueBetween(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.CheckinRecord, error) {
	query := `SELECT id, organization_id, user_id, mood, week_of, submitted_at, due_at
        FROM checkins
        WHERE organization_id = ? AND due_at >= ? AND due_at <= ?`
	args := []interface{}{organizationID, from, to}
	if len(userIDs) > 0 {
		query += " AND user_id IN (?)"
		args = append(args, userIDs)
	}
	query += " ORDER BY due_at ASC, user_id ASC"

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build checkins due query: %w", err)
	}

	var records []models.CheckinRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("query checkins by due: %w", err)
	}
	return records, nil
}

// Reviews returns review events due inside [from, to], optionally restricted
// to a reviewer population.
func (r *EventRepository) Reviews(ctx context.Context, organizationID string, reviewerIDs []string, from, to time.Time) ([]models.ReviewRecord, error) {
	query := `SELECT id, organization_id, reviewer_id, checkin_id, reviewed_at, due_at
        FROM reviews
        WHERE organization_id = ? AND due_at >= ? AND due_at <= ?`
	args := []interface{}{organizationID, from, to}
	if len(reviewerIDs) > 0 {
		query += " AND reviewer_id IN (?)"
		args = append(args, reviewerIDs)
	}
	query += " ORDER BY due_at ASC, reviewer_id ASC"

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build reviews query: %w", err)
	}

	var records []models.ReviewRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	return records, nil
}

// Shoutouts returns shoutouts created inside [from, to] touching the given
// population as sender or recipient. An empty userIDs slice returns every
// shoutout in the organization for the range.
func (r *EventRepository) Shoutouts(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.ShoutoutRecord, error) {
	query := `SELECT id, organization_id, sender_id, recipient_id, visibility, created_at
        FROM shoutouts
        WHERE organization_id = ? AND created_at >= ? AND created_at <= ?`
	args := []interface{}{organizationID, from, to}
	if len(userIDs) > 0 {
		query += " AND (sender_id IN (?) OR recipient_id IN (?))"
		args = append(args, userIDs, userIDs)
	}
	query += " ORDER BY created_at ASC, id ASC"

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build shoutouts query: %w", err)
	}

	var records []models.ShoutoutRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("query shoutouts: %w", err)
	}
	return records, nil
}

// WinCount returns the number of recorded wins inside [from, to].
func (r *EventRepository) WinCount(ctx context.Context, organizationID string, from, to time.Time) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(1) FROM wins WHERE organization_id = $1 AND created_at >= $2 AND created_at <= $3",
		organizationID, from, to); err != nil {
		return 0, fmt.Errorf("query wins: %w", err)
	}
	return count, nil
}
