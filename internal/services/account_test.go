package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"questlog/internal/apperr"
	"questlog/internal/models"
	"questlog/internal/utils"
)

// accountStore mocks the user, game list and notification parts of the database store.
type accountStore struct {
	mock.Mock
}

func (m *accountStore) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *accountStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *accountStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *accountStore) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *accountStore) SearchUsers(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	args := m.Called(ctx, prefix, limit)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

func (m *accountStore) UpsertUserGame(ctx context.Context, userID, gameID uint, patch models.UserGamePatch) error {
	return m.Called(ctx, userID, gameID, patch).Error(0)
}

func (m *accountStore) ToggleFavorite(ctx context.Context, userID, gameID uint) error {
	return m.Called(ctx, userID, gameID).Error(0)
}

func (m *accountStore) ListUserGames(ctx context.Context, userID uint, favoritesOnly bool, gameIDs []uint) ([]models.UserGame, error) {
	args := m.Called(ctx, userID, favoritesOnly, gameIDs)
	list, _ := args.Get(0).([]models.UserGame)
	return list, args.Error(1)
}

func (m *accountStore) GetUserGame(ctx context.Context, userID, gameID uint) (*models.UserGame, error) {
	args := m.Called(ctx, userID, gameID)
	entry, _ := args.Get(0).(*models.UserGame)
	return entry, args.Error(1)
}

func (m *accountStore) ListNotifications(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit)
	rows, _ := args.Get(0).([]models.Notification)
	return rows, args.Error(1)
}

func (m *accountStore) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *accountStore) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *accountStore) MarkAllNotificationsRead(ctx context.Context, userID uint) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *accountStore) DeleteNotification(ctx context.Context, userID, id uint) error {
	return m.Called(ctx, userID, id).Error(0)
}

func TestSignup(t *testing.T) {
	store := new(accountStore)
	store.On("UsernameOrEmailTaken", mock.Anything, "new_player", "np@example.com").Return(false, false, nil)
	store.On("CreateUser", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.User).ID = 11
	})
	svc := NewUserService(store)

	user, err := svc.Signup(context.Background(), SignupInput{Username: " new_player ", Email: "NP@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, uint(11), user.ID)
	assert.Equal(t, "np@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.Password)
	assert.True(t, utils.CheckPassword(user.Password, "correct horse"))
	store.AssertExpectations(t)
}

func TestSignupRejects(t *testing.T) {
	tests := []struct {
		name      string
		in        SignupInput
		userTaken bool
		mailTaken bool
		want      error
	}{
		{"short password", SignupInput{Username: "player", Email: "p@example.com", Password: "short"}, false, false, apperr.ErrInvalidInput},
		{"bad email", SignupInput{Username: "player", Email: "nope", Password: "longenough"}, false, false, apperr.ErrInvalidInput},
		{"bad username", SignupInput{Username: "a b", Email: "p@example.com", Password: "longenough"}, false, false, apperr.ErrInvalidInput},
		{"username taken", SignupInput{Username: "player", Email: "p@example.com", Password: "longenough"}, true, false, apperr.ErrConflict},
		{"email taken", SignupInput{Username: "player", Email: "p@example.com", Password: "longenough"}, false, true, apperr.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(accountStore)
			store.On("UsernameOrEmailTaken", mock.Anything, mock.Anything, mock.Anything).Return(tt.userTaken, tt.mailTaken, nil)

			_, err := NewUserService(store).Signup(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			store.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("correct horse")
	require.NoError(t, err)

	store := new(accountStore)
	store.On("GetUserByUsername", mock.Anything, "alice").Return(&models.User{ID: 1, Username: "alice", Password: hash}, nil)
	store.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, fmt.Errorf("user ghost: %w", apperr.ErrNotFound))
	svc := NewUserService(store)
	ctx := context.Background()

	user, err := svc.Login(ctx, LoginInput{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)

	_, wrongPassword := svc.Login(ctx, LoginInput{Username: "alice", Password: "battery staple"})
	_, unknownUser := svc.Login(ctx, LoginInput{Username: "ghost", Password: "correct horse"})
	assert.ErrorIs(t, wrongPassword, apperr.ErrUnauthorized)
	// 不泄露用户是否存在
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestGetUserNotFound(t *testing.T) {
	store := new(accountStore)
	store.On("GetUser", mock.Anything, uint(9)).Return(nil, fmt.Errorf("user 9: %w", apperr.ErrNotFound))

	_, err := NewUserService(store).GetUser(context.Background(), 9)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserSearch(t *testing.T) {
	store := new(accountStore)
	store.On("SearchUsers", mock.Anything, "ali", 50).Return([]models.User{{ID: 1, Username: "alice"}}, nil)
	store.On("SearchUsers", mock.Anything, "", 50).Return(nil, nil)
	svc := NewUserService(store)

	users, err := svc.Search(context.Background(), "  ali ")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	users, err = svc.Search(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
	store.AssertExpectations(t)
}

func TestUserSearchStoreFailure(t *testing.T) {
	store := new(accountStore)
	store.On("SearchUsers", mock.Anything, "bob", 50).Return(nil, assert.AnError)

	_, err := NewUserService(store).Search(context.Background(), "bob")
	assert.Equal(t, "INTERNAL_ERROR", apperr.From(err).Code)
}

func TestGameListSaveRoundsRating(t *testing.T) {
	store := new(accountStore)
	rounded := 7.67
	store.On("UpsertUserGame", mock.Anything, uint(1), uint(1942), mock.MatchedBy(func(p models.UserGamePatch) bool {
		return p.Rating != nil && *p.Rating == rounded && p.Status == nil
	})).Return(nil)

	rating := 7.666
	err := NewGameListService(store, nil).Save(context.Background(), 1, 1942, models.UserGamePatch{Rating: &rating})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestGameListSaveValidation(t *testing.T) {
	store := new(accountStore)
	svc := NewGameListService(store, nil)
	ctx := context.Background()

	bad := 11.0
	assert.ErrorIs(t, svc.Save(ctx, 1, 1942, models.UserGamePatch{Rating: &bad}), apperr.ErrInvalidInput)
	status := "wishlist"
	assert.ErrorIs(t, svc.Save(ctx, 1, 1942, models.UserGamePatch{Status: &status}), apperr.ErrInvalidInput)
	assert.ErrorIs(t, svc.Save(ctx, 1, 0, models.UserGamePatch{}), apperr.ErrInvalidInput)
	store.AssertNotCalled(t, "UpsertUserGame", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGameListByUsername(t *testing.T) {
	store := new(accountStore)
	store.On("GetUserByUsername", mock.Anything, "bob_2").Return(&models.User{ID: 2}, nil)
	store.On("ListUserGames", mock.Anything, uint(2), true, []uint(nil)).Return(nil, nil)
	store.On("GetUserByUsername", mock.Anything, "nobody").Return(nil, fmt.Errorf("user nobody: %w", apperr.ErrNotFound))
	svc := NewGameListService(store, nil)

	list, err := svc.ByUsername(context.Background(), "bob_2", true)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = svc.ByUsername(context.Background(), "nobody", false)
	assert.Equal(t, "user not found", apperr.From(err).Message)
}

func TestNotificationList(t *testing.T) {
	store := new(accountStore)
	store.On("ListNotifications", mock.Anything, uint(1), NotificationLimit).Return([]models.Notification{{ID: 3}}, nil)
	store.On("ListNotifications", mock.Anything, uint(1), 0).Return(nil, nil)
	store.On("UnreadCount", mock.Anything, uint(1)).Return(int64(4), nil)
	svc := NewNotificationService(store)

	page, err := svc.List(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.EqualValues(t, 4, page.UnreadCount)

	page, err = svc.List(context.Background(), 1, true)
	require.NoError(t, err)
	assert.NotNil(t, page.Rows)
	store.AssertExpectations(t)
}

func TestNotificationMarkReadNotFound(t *testing.T) {
	store := new(accountStore)
	store.On("MarkNotificationRead", mock.Anything, uint(1), uint(99)).Return(fmt.Errorf("notification 99: %w", apperr.ErrNotFound))
	store.On("DeleteNotification", mock.Anything, uint(1), uint(5)).Return(errors.New("db down"))
	svc := NewNotificationService(store)

	assert.ErrorIs(t, svc.MarkRead(context.Background(), 1, 99), apperr.ErrNotFound)
	assert.Equal(t, "INTERNAL_ERROR", apperr.From(svc.Dismiss(context.Background(), 1, 5)).Code)
}
