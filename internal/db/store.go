package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"questlog/internal/apperr"
	"questlog/internal/models"
)

// Store implements the persistence interfaces of the services on top of gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// notFound maps gorm.ErrRecordNotFound to apperr.ErrNotFound.
func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, apperr.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, err)
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create user: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &user, nil
}

// UsernameOrEmailTaken reports which of the two unique user fields are already in use.
func (s *Store) UsernameOrEmailTaken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	var users []models.User
	err = s.db.WithContext(ctx).
		Select("username", "email").
		Where("username = ? OR email = ?", username, email).
		Find(&users).Error
	if err != nil {
		return false, false, fmt.Errorf("check user uniqueness: %w", err)
	}
	for _, u := range users {
		usernameTaken = usernameTaken || u.Username == username
		emailTaken = emailTaken || u.Email == email
	}
	return usernameTaken, emailTaken, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsers returns up to limit users whose username starts with prefix, case-insensitively.
// An empty prefix matches everyone.
func (s *Store) SearchUsers(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	var users []models.User
	q := s.db.WithContext(ctx).Select("id", "username", "profile_pic_url").Order("username ASC").Limit(limit)
	if prefix != "" {
		q = q.Where("username ILIKE ?", likeEscaper.Replace(prefix)+"%")
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}
