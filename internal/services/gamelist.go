package services

import (
	"context"
	"errors"
	"math"

	"questlog/internal/apperr"
	"questlog/internal/models"
	"questlog/internal/validator"
)

type GameListStore interface {
	UpsertUserGame(ctx context.Context, userID, gameID uint, patch models.UserGamePatch) error
	ToggleFavorite(ctx context.Context, userID, gameID uint) error
	ListUserGames(ctx context.Context, userID uint, favoritesOnly bool, gameIDs []uint) ([]models.UserGame, error)
	GetUserGame(ctx context.Context, userID, gameID uint) (*models.UserGame, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// ThreadInvalidator drops cached thread rows. Review rows carry the author's list rating, so a
// rating change must reach the thread cache.
type ThreadInvalidator interface {
	InvalidateThread(gameID uint)
}

// GameListService 用户游戏清单
type GameListService struct {
	store   GameListStore
	threads ThreadInvalidator
}

func NewGameListService(store GameListStore, threads ThreadInvalidator) *GameListService {
	return &GameListService{store: store, threads: threads}
}

// Save adds the game to the user's list or updates the fields set in patch. Ratings are kept to
// two decimals.
func (s *GameListService) Save(ctx context.Context, userID, gameID uint, patch models.UserGamePatch) error {
	if gameID == 0 {
		return apperr.InvalidInput("missing game id")
	}
	if err := validator.Validate(patch); err != nil {
		return err
	}
	if patch.Rating != nil {
		rounded := math.Round(*patch.Rating*100) / 100
		patch.Rating = &rounded
	}
	if err := s.store.UpsertUserGame(ctx, userID, gameID, patch); err != nil {
		return apperr.Internal(err)
	}
	// 评测里显示的评分来自清单
	if patch.Rating != nil && s.threads != nil {
		s.threads.InvalidateThread(gameID)
	}
	return nil
}

func (s *GameListService) ToggleFavorite(ctx context.Context, userID, gameID uint) error {
	if gameID == 0 {
		return apperr.InvalidInput("missing game id")
	}
	if err := s.store.ToggleFavorite(ctx, userID, gameID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *GameListService) Mine(ctx context.Context, userID uint, favoritesOnly bool, gameIDs []uint) ([]models.UserGame, error) {
	list, err := s.store.ListUserGames(ctx, userID, favoritesOnly, gameIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return nonNil(list), nil
}

// ByUsername returns another user's public list.
func (s *GameListService) ByUsername(ctx context.Context, username string, favoritesOnly bool) ([]models.UserGame, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Missing("user not found")
		}
		return nil, apperr.Internal(err)
	}
	list, err := s.store.ListUserGames(ctx, user.ID, favoritesOnly, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return nonNil(list), nil
}

// Current returns the user's entry for one game, or nil when it is not on the list.
func (s *GameListService) Current(ctx context.Context, userID, gameID uint) (*models.UserGame, error) {
	entry, err := s.store.GetUserGame(ctx, userID, gameID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return entry, nil
}

func nonNil(list []models.UserGame) []models.UserGame {
	if list == nil {
		return []models.UserGame{}
	}
	return list
}
