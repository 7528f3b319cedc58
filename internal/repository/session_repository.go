package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sports-registration/internal/model"
)

// SessionRepository is a session.Store backed by the sessions table, so drafts survive restarts.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, userID int64) (*model.Session, error) {
	var rec model.SessionRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	switch {
	case err == nil:
		s := rec.Session()
		return &s, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find session: %w", err)
	}
}

// Put inserts or replaces the user's session row.
func (r *SessionRepository) Put(ctx context.Context, s model.Session) error {
	rec := model.NewSessionRecord(s)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"step", "name", "phone", "college_type", "stream", "course", "roll_number", "sport", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID int64) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.SessionRecord{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.SessionRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
