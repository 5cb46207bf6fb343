package services

import (
	"context"
	"errors"
	"strings"

	"questlog/internal/apperr"
	"questlog/internal/models"
	"questlog/internal/utils"
	"questlog/internal/validator"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, bool, error)
	SearchUsers(ctx context.Context, prefix string, limit int) ([]models.User, error)
}

// userSearchLimit 用户搜索最多返回的条数
const userSearchLimit = 50

type SignupInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserService 注册与登录
type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	if !utils.ValidUsername(in.Username) {
		return nil, apperr.InvalidInput("username must be 4-20 characters of letters, digits, '.', '_' or '-'")
	}

	usernameTaken, emailTaken, err := s.store.UsernameOrEmailTaken(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	switch {
	case usernameTaken:
		return nil, apperr.Conflict("username is already taken")
	case emailTaken:
		return nil, apperr.Conflict("email is already registered")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	user := &models.User{Username: in.Username, Email: in.Email, Password: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("username or email is already registered")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// Login checks the credentials. Unknown users and wrong passwords get the same error.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errBadCredentials()
		}
		return nil, apperr.Internal(err)
	}
	if !utils.CheckPassword(user.Password, in.Password) {
		return nil, errBadCredentials()
	}
	return user, nil
}

func errBadCredentials() error {
	return apperr.Unauthorized("invalid username or password")
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeError(err, "user", id)
	}
	return user, nil
}

// Search finds users whose username starts with term. An empty term lists the first users.
func (s *UserService) Search(ctx context.Context, term string) ([]models.User, error) {
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(term), userSearchLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
