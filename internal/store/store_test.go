package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wc-reservation-backend/internal/db"
	"wc-reservation-backend/internal/model"
)

// newTestStore opens a migrated sqlite database in a temp dir.
func newTestStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "wc.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return NewGormStore(gormDB), gormDB
}

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_CreateUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "🦊")
	require.NoError(t, err)
	assert.NotZero(t, alice.ID)
	assert.False(t, alice.CreatedAt.IsZero())

	_, err = s.CreateUser(ctx, "alice", "🐻")
	assert.ErrorIs(t, err, ErrDuplicateHandle)

	// Handles are case-sensitive.
	_, err = s.CreateUser(ctx, "Alice", "🐻")
	assert.NoError(t, err)

	byHandle, err := s.GetUserByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byHandle.ID)

	byID, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "🦊", byID.Glyph)

	_, err = s.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = s.GetUserByHandle(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestGormStore_ReservationLifecycle(t *testing.T) {
	s, gormDB := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "bob", "🐢")
	require.NoError(t, err)

	status, err := s.GetResourceStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Occupied)
	assert.Nil(t, status.HolderID)
	assert.Nil(t, status.OccupiedSince)
	assert.Nil(t, status.FunMessage)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	recordID, err := s.OpenReservation(ctx, user.ID, start, "hello")
	require.NoError(t, err)
	assert.NotZero(t, recordID)

	status, err = s.GetResourceStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Occupied)
	require.NotNil(t, status.HolderID)
	assert.Equal(t, user.ID, *status.HolderID)
	require.NotNil(t, status.Handle)
	assert.Equal(t, "bob", *status.Handle)
	require.NotNil(t, status.OccupiedSince)
	assert.True(t, start.Equal(*status.OccupiedSince))
	require.NotNil(t, status.FunMessage)
	assert.Equal(t, "hello", *status.FunMessage)

	// The open record is not part of the history yet.
	history, err := s.RecentHistory(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = s.OpenReservation(ctx, user.ID, start, "again")
	assert.ErrorIs(t, err, ErrStatusConflict)

	var openCount int64
	gormDB.Model(&model.Reservation{}).Where("ended_at IS NULL").Count(&openCount)
	assert.Equal(t, int64(1), openCount, "a rejected open must not append a record")

	end := start.Add(2 * time.Minute)
	require.NoError(t, s.CloseReservation(ctx, user.ID, end, 2, false))

	status, err = s.GetResourceStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Occupied)
	assert.Nil(t, status.HolderID)

	history, err = s.RecentHistory(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, user.ID, history[0].UserID)
	assert.Equal(t, "bob", history[0].Handle)
	assert.Equal(t, 2, history[0].DurationMinutes)
	assert.False(t, history[0].AutoReleased)
	assert.True(t, end.Equal(history[0].EndedAt))

	assert.ErrorIs(t, s.CloseReservation(ctx, user.ID, end, 0, true), ErrStatusConflict)
}

func TestGormStore_OpenReservationUnknownUser(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.OpenReservation(context.Background(), 42, time.Now(), "x")
	assert.ErrorIs(t, err, ErrUserNotFound)

	status, err := s.GetResourceStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Occupied)
}

func TestGormStore_HistoryAndStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateUser(ctx, "a", "🅰️")
	require.NoError(t, err)
	b, err := s.CreateUser(ctx, "b", "🅱️")
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	visits := []struct {
		user     int64
		duration int
		auto     bool
	}{
		{a.ID, 3, false},
		{b.ID, 10, true},
		{a.ID, 5, false},
	}
	for i, v := range visits {
		start := base.Add(time.Duration(i) * time.Hour)
		_, err := s.OpenReservation(ctx, v.user, start, "m")
		require.NoError(t, err)
		require.NoError(t, s.CloseReservation(ctx, v.user, start.Add(time.Duration(v.duration)*time.Minute), v.duration, v.auto))
	}

	history, err := s.RecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, a.ID, history[0].UserID, "most recent first")
	assert.Equal(t, 5, history[0].DurationMinutes)
	assert.Equal(t, b.ID, history[1].UserID)
	assert.True(t, history[1].AutoReleased)

	stats, err := s.UserStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VisitCount)
	assert.InDelta(t, 4.0, stats.AvgDuration, 0.001)
	assert.Equal(t, int64(8), stats.TotalDuration)

	_, err = s.UserStats(ctx, 12345)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub := model.PushSubscription{Endpoint: "https://push.example.com/1", P256DH: "k", Auth: "a"}
	require.NoError(t, s.SaveSubscription(ctx, sub))

	sub.Auth = "b"
	require.NoError(t, s.SaveSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Auth)

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestGormStore_FailuresAreClassified(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT .* FROM "users"`).WillReturnError(boom)
	_, err := s.GetUserByID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)

	mock.ExpectQuery(`SELECT .* FROM "resource_status"`).WillReturnError(boom)
	_, err = s.GetResourceStatus(context.Background())
	assert.ErrorIs(t, err, ErrStoreFailure)

	assert.NoError(t, mock.ExpectationsWereMet())
}
