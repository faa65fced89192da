package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"swissknife-chat/internal/model"
)

// UserRepository owns the users table. Lookups return (nil, nil) when
// no row matches; the caller decides whether absence is an error.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.findOne("username lookup", "username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.findOne("email lookup", "email = ?", email)
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.findOne("id lookup", "id = ?", id)
}

func (r *UserRepository) findOne(op, cond string, arg any) (*model.User, error) {
	var user model.User
	err := r.db.Where(cond, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user %s failed: %w", op, err)
	}
	return &user, nil
}
