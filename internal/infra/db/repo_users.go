package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"firmadoc/internal/domain"
)

type UserModel struct {
	ID        int64  `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	Document  string `gorm:"not null"`
	Name      string
	Role      string
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "fdc_users" }

// UserRepository implements domain.UserDirectory over the users table.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindUserByID(ctx context.Context, id int64) (*domain.Identity, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", domain.ErrValidation, id)
		}
		return nil, err
	}
	return &domain.Identity{
		ID:       m.ID,
		Email:    m.Email,
		Document: m.Document,
		Name:     m.Name,
		Role:     m.Role,
	}, nil
}

func (r *UserRepository) Create(ctx context.Context, identity domain.Identity) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Create(&UserModel{
		ID:        identity.ID,
		Email:     identity.Email,
		Document:  identity.Document,
		Name:      identity.Name,
		Role:      identity.Role,
		CreatedAt: time.Now().UTC(),
	}).Error
}
