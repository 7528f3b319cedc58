package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"sports-registration/internal/model"
)

// RegistrationRepository appends completed registrations.
type RegistrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts reg and fills in its ID.
func (r *RegistrationRepository) Create(ctx context.Context, reg *model.Registration) error {
	if err := r.db.WithContext(ctx).Create(reg).Error; err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Registration{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}
