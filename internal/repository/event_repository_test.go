package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var (
	rangeFrom = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
)

func TestCheckinsExpandsUserFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "user_id", "mood", "week_of", "submitted_at", "due_at"}).
		AddRow("c1", "org1", "u1", 4, rangeFrom, rangeFrom, rangeFrom)
	mock.ExpectQuery(regexp.QuoteMeta("user_id IN")).
		WithArgs("org1", rangeFrom, rangeTo, "u1", "u2").
		WillReturnRows(rows)

	records, err := repo.Checkins(context.Background(), "org1", []string{"u1", "u2"}, rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "u1", records[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckinsWithoutUserFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM checkins")).
		WithArgs("org1", rangeFrom, rangeTo).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "user_id", "mood", "week_of", "submitted_at", "due_at"}))

	records, err := repo.Checkins(context.Background(), "org1", nil, rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckinsDueBetweenFiltersByDueInstant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "user_id", "mood", "week_of", "submitted_at", "due_at"}).
		AddRow("c1", "org1", "u1", 4, rangeFrom.AddDate(0, 0, -7), rangeFrom, rangeFrom)
	mock.ExpectQuery(regexp.QuoteMeta("due_at >= ? AND due_at <= ?")).
		WithArgs("org1", rangeFrom, rangeTo, "u1").
		WillReturnRows(rows)

	records, err := repo.CheckinsDueBetween(context.Background(), "org1", []string{"u1"}, rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "u1", records[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewsFiltersByDueInstant(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "reviewer_id", "checkin_id", "reviewed_at", "due_at"}).
		AddRow("r1", "org1", "m1", "c1", rangeFrom.Add(time.Hour), rangeFrom)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews")).
		WithArgs("org1", rangeFrom, rangeTo, "m1").
		WillReturnRows(rows)

	records, err := repo.Reviews(context.Background(), "org1", []string{"m1"}, rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "m1", records[0].ReviewerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShoutoutsMatchesSenderOrRecipient(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "sender_id", "recipient_id", "visibility", "created_at"}).
		AddRow("s1", "org1", "u1", "ext", "public", rangeFrom.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("sender_id IN")).
		WithArgs("org1", rangeFrom, rangeTo, "u1", "u1").
		WillReturnRows(rows)

	records, err := repo.Shoutouts(context.Background(), "org1", []string{"u1"}, rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWinCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM wins")).
		WithArgs("org1", rangeFrom, rangeTo).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.WinCount(context.Background(), "org1", rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryActiveUserIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDirectoryRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM org_users WHERE organization_id = $1 AND active = TRUE ORDER BY id ASC")).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1").AddRow("u2"))

	ids, err := repo.ActiveUserIDs(context.Background(), "org1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryTeamIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDirectoryRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM teams WHERE organization_id = $1 ORDER BY id ASC")).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))

	ids, err := repo.TeamIDs(context.Background(), "org1")
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
