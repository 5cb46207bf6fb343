package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"questlog/internal/models"
)

var userGameKey = []clause.Column{{Name: "user_id"}, {Name: "game_id"}}

// UpsertUserGame creates the list entry or updates only the fields set in patch.
func (s *Store) UpsertUserGame(ctx context.Context, userID, gameID uint, patch models.UserGamePatch) error {
	entry := models.UserGame{
		UserID:      userID,
		GameID:      gameID,
		Rating:      patch.Rating,
		Status:      patch.Status,
		HoursPlayed: patch.HoursPlayed,
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Rating != nil {
		updates["rating"] = *patch.Rating
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.HoursPlayed != nil {
		updates["hours_played"] = *patch.HoursPlayed
	}
	if patch.Favorited != nil {
		entry.Favorited = *patch.Favorited
		updates["favorited"] = *patch.Favorited
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   userGameKey,
		DoUpdates: clause.Assignments(updates),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert user game: %w", err)
	}
	return nil
}

// ToggleFavorite flips the favorite flag, adding the game as a favorite when it is not listed yet.
func (s *Store) ToggleFavorite(ctx context.Context, userID, gameID uint) error {
	entry := models.UserGame{UserID: userID, GameID: gameID, Favorited: true}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: userGameKey,
		DoUpdates: clause.Assignments(map[string]any{
			"favorited":  gorm.Expr("NOT user_games.favorited"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("toggle favorite: %w", err)
	}
	return nil
}

// ListUserGames returns the user's list. gameIDs narrows it when not empty.
func (s *Store) ListUserGames(ctx context.Context, userID uint, favoritesOnly bool, gameIDs []uint) ([]models.UserGame, error) {
	var list []models.UserGame
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if favoritesOnly {
		q = q.Where("favorited = ?", true)
	}
	if len(gameIDs) > 0 {
		q = q.Where("game_id IN ?", gameIDs)
	}
	if err := q.Order("updated_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list user games: %w", err)
	}
	return list, nil
}

// GetUserGame returns the user's entry for one game, or nil when the game is not listed.
func (s *Store) GetUserGame(ctx context.Context, userID, gameID uint) (*models.UserGame, error) {
	var entry models.UserGame
	err := s.db.WithContext(ctx).Where("user_id = ? AND game_id = ?", userID, gameID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user game: %w", err)
	}
	return &entry, nil
}
