package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wc-reservation-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	CreateUser(ctx context.Context, handle, glyph string) (model.User, error)
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	GetUserByHandle(ctx context.Context, handle string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	GetResourceStatus(ctx context.Context) (StatusView, error)
	OpenReservation(ctx context.Context, userID int64, start time.Time, funMessage string) (int64, error)
	CloseReservation(ctx context.Context, holderID int64, end time.Time, durationMinutes int, autoReleased bool) error
	RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	UserStats(ctx context.Context, userID int64) (UserStats, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func failure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreFailure, err))
}

// CreateUser inserts a user. Handles are compared case-sensitively.
func (s *gormStore) CreateUser(ctx context.Context, handle, glyph string) (model.User, error) {
	user := model.User{Handle: handle, Glyph: glyph}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateHandle
		}
		return tx.Create(&user).Error
	})
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrDuplicateHandle), errors.Is(err, gorm.ErrDuplicatedKey):
		return model.User{}, ErrDuplicateHandle
	default:
		return model.User{}, failure("create user", err)
	}
}

func (s *gormStore) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, failure("get user", err)
	}
	return user, nil
}

func (s *gormStore) GetUserByHandle(ctx context.Context, handle string) (model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("handle = ?", handle).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, failure("get user by handle", err)
	}
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *gormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
		return nil, failure("list users", err)
	}
	return users, nil
}

// GetResourceStatus reads the singleton status row with its holder.
func (s *gormStore) GetResourceStatus(ctx context.Context) (StatusView, error) {
	var status model.ResourceStatus
	if err := s.db.WithContext(ctx).Preload("Holder").First(&status, model.ResourceStatusID).Error; err != nil {
		return StatusView{}, failure("get resource status", err)
	}

	view := StatusView{
		Occupied:      status.Occupied,
		HolderID:      status.HolderID,
		OccupiedSince: status.OccupiedSince,
		FunMessage:    status.FunMessage,
	}
	if status.Holder != nil {
		view.Handle = &status.Holder.Handle
		view.Glyph = &status.Holder.Glyph
	}
	return view, nil
}

// OpenReservation marks the WC as occupied by userID and appends an open
// history record, in one transaction.
func (s *gormStore) OpenReservation(ctx context.Context, userID int64, start time.Time, funMessage string) (int64, error) {
	record := model.Reservation{UserID: userID, StartedAt: start}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		res := tx.Model(&model.ResourceStatus{}).
			Where("id = ? AND occupied = ?", model.ResourceStatusID, false).
			Updates(map[string]any{
				"occupied":       true,
				"holder_id":      userID,
				"occupied_since": start,
				"fun_message":    funMessage,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}

		return tx.Create(&record).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrStatusConflict) {
			return 0, err
		}
		return 0, failure("open reservation", err)
	}
	return record.ID, nil
}

// CloseReservation closes holderID's open record and frees the WC, in one
// transaction.
func (s *gormStore) CloseReservation(ctx context.Context, holderID int64, end time.Time, durationMinutes int, autoReleased bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Reservation{}).
			Where("user_id = ? AND ended_at IS NULL", holderID).
			Updates(map[string]any{
				"ended_at":         end,
				"duration_minutes": durationMinutes,
				"auto_released":    autoReleased,
			}).Error; err != nil {
			return err
		}

		res := tx.Model(&model.ResourceStatus{}).
			Where("id = ? AND occupied = ? AND holder_id = ?", model.ResourceStatusID, true, holderID).
			Updates(map[string]any{
				"occupied":       false,
				"holder_id":      nil,
				"occupied_since": nil,
				"fun_message":    nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return err
		}
		return failure("close reservation", err)
	}
	return nil
}

// RecentHistory returns up to limit closed reservations, most recent first.
func (s *gormStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	var records []model.Reservation
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("ended_at IS NOT NULL").
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, failure("recent history", err)
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		entry := HistoryEntry{
			ID:           r.ID,
			UserID:       r.UserID,
			Handle:       r.User.Handle,
			Glyph:        r.User.Glyph,
			StartedAt:    r.StartedAt,
			AutoReleased: r.AutoReleased,
		}
		if r.EndedAt != nil {
			entry.EndedAt = *r.EndedAt
		}
		if r.DurationMinutes != nil {
			entry.DurationMinutes = *r.DurationMinutes
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UserStats aggregates the closed reservations of one user.
func (s *gormStore) UserStats(ctx context.Context, userID int64) (UserStats, error) {
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return UserStats{}, err
	}

	var row struct {
		VisitCount    int64
		AvgDuration   float64
		TotalDuration int64
	}
	if err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Select("COUNT(*) AS visit_count, COALESCE(AVG(duration_minutes), 0) AS avg_duration, COALESCE(SUM(duration_minutes), 0) AS total_duration").
		Where("user_id = ? AND ended_at IS NOT NULL", userID).
		Scan(&row).Error; err != nil {
		return UserStats{}, failure("user stats", err)
	}

	return UserStats{
		UserID:        userID,
		VisitCount:    row.VisitCount,
		AvgDuration:   row.AvgDuration,
		TotalDuration: row.TotalDuration,
	}, nil
}

// SaveSubscription creates or replaces a push subscription.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error; err != nil {
		return failure("save subscription", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PushSubscription{}, ErrSubscriptionNotFound
		}
		return model.PushSubscription{}, failure("get subscription", err)
	}
	return sub, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, failure("list subscriptions", err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return failure("delete subscription", err)
	}
	return nil
}

// Ping checks that the database answers.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return failure("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return failure("ping", err)
	}
	return nil
}
