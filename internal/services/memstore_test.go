package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/models"
	"questlog/internal/thread"
)

// memStore is an in-memory ReviewStore with the same uniqueness rules as the database.
type memStore struct {
	mu            sync.Mutex
	nextID        uint
	users         map[uint]*models.User
	reviews       map[uint]*models.Review
	replies       map[uint]*models.Reply
	votes         map[uint]map[thread.Target]models.VoteValue
	notifications []models.Notification
	ratings       map[[2]uint]float64
	fetches       int
	notifyErr     error

	// afterReplyFetch runs once the reply rows are read, outside the lock.
	afterReplyFetch func()
}

func newMemStore(usernames ...string) *memStore {
	s := &memStore{
		users:   map[uint]*models.User{},
		reviews: map[uint]*models.Review{},
		replies: map[uint]*models.Reply{},
		votes:   map[uint]map[thread.Target]models.VoteValue{},
		ratings: map[[2]uint]float64{},
	}
	for _, name := range usernames {
		s.nextID++
		s.users[s.nextID] = &models.User{ID: s.nextID, Username: name}
	}
	return s
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) FetchReviewRows(_ context.Context, gameID uint) ([]thread.ReviewRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	var rows []thread.ReviewRow
	for _, r := range s.reviews {
		if r.GameID != gameID {
			continue
		}
		up, down := s.tally(thread.Target{Type: models.TargetReview, ID: r.ID})
		row := thread.ReviewRow{
			ID: r.ID, UserID: r.UserID, GameID: r.GameID, Text: r.Text,
			CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, DeletedAt: r.DeletedAt,
			AuthorUsername: s.users[r.UserID].Username,
			UpvoteCount:    up, DownvoteCount: down,
		}
		if rating, ok := s.ratings[[2]uint{r.UserID, r.GameID}]; ok {
			row.RatingSnapshot = &rating
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *memStore) FetchReplyRows(_ context.Context, gameID uint) ([]thread.ReplyRow, error) {
	rows := s.replyRows(gameID)
	s.mu.Lock()
	hook := s.afterReplyFetch
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, nil
}

func (s *memStore) replyRows(gameID uint) []thread.ReplyRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []thread.ReplyRow
	for _, r := range s.replies {
		if r.GameID != gameID {
			continue
		}
		up, down := s.tally(thread.Target{Type: models.TargetReply, ID: r.ID})
		rows = append(rows, thread.ReplyRow{
			ID: r.ID, ReviewID: r.ReviewID, ParentReplyID: r.ParentID, UserID: r.UserID, GameID: r.GameID,
			Text: r.Text, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, DeletedAt: r.DeletedAt,
			AuthorUsername: s.users[r.UserID].Username,
			UpvoteCount:    up, DownvoteCount: down,
		})
	}
	return rows
}

func (s *memStore) tally(target thread.Target) (up, down int64) {
	for _, byTarget := range s.votes {
		switch byTarget[target] {
		case models.VoteUpvote:
			up++
		case models.VoteDownvote:
			down++
		}
	}
	return up, down
}

func (s *memStore) ViewerVotes(_ context.Context, _ uint, userID uint) (map[thread.Target]models.VoteValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[thread.Target]models.VoteValue{}
	for k, v := range s.votes[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) ActiveReview(_ context.Context, userID, gameID uint) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.UserID == userID && r.GameID == gameID && r.DeletedAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetReview(_ context.Context, id uint) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %d: %w", id, apperr.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetReply(_ context.Context, id uint) (*models.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[id]
	if !ok {
		return nil, fmt.Errorf("reply %d: %w", id, apperr.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) CreateReview(_ context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.UserID == review.UserID && r.GameID == review.GameID && r.DeletedAt == nil {
			return fmt.Errorf("create review: %w", apperr.ErrConflict)
		}
	}
	review.ID = s.id()
	review.CreatedAt = time.Now().Add(time.Duration(review.ID) * time.Second)
	review.UpdatedAt = review.CreatedAt
	cp := *review
	s.reviews[review.ID] = &cp
	return nil
}

func (s *memStore) CreateReply(_ context.Context, reply *models.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply.ID = s.id()
	reply.CreatedAt = time.Now().Add(time.Duration(reply.ID) * time.Second)
	reply.UpdatedAt = reply.CreatedAt
	cp := *reply
	s.replies[reply.ID] = &cp
	return nil
}

func (s *memStore) UpdateReviewText(_ context.Context, id uint, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok || r.DeletedAt != nil {
		return fmt.Errorf("review %d: %w", id, apperr.ErrNotFound)
	}
	r.Text = text
	return nil
}

func (s *memStore) UpdateReplyText(_ context.Context, id uint, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[id]
	if !ok || r.DeletedAt != nil {
		return fmt.Errorf("reply %d: %w", id, apperr.ErrNotFound)
	}
	r.Text = text
	return nil
}

func (s *memStore) SoftDeleteReview(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok || r.DeletedAt != nil {
		return fmt.Errorf("review %d: %w", id, apperr.ErrNotFound)
	}
	r.DeletedAt = &at
	return nil
}

func (s *memStore) SoftDeleteReply(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[id]
	if !ok || r.DeletedAt != nil {
		return fmt.Errorf("reply %d: %w", id, apperr.ErrNotFound)
	}
	r.DeletedAt = &at
	return nil
}

func (s *memStore) SetVote(_ context.Context, userID uint, target thread.Target, value models.VoteValue) (models.VoteValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.votes[userID][target]
	if !ok {
		previous = models.VoteNone
	}
	if value == models.VoteNone {
		delete(s.votes[userID], target)
		return previous, nil
	}
	if s.votes[userID] == nil {
		s.votes[userID] = map[thread.Target]models.VoteValue{}
	}
	s.votes[userID][target] = value
	return previous, nil
}

func (s *memStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	return u, nil
}

func (s *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyErr != nil {
		return s.notifyErr
	}
	n.ID = s.id()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *memStore) CreateNotificationOnce(_ context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyErr != nil {
		return false, s.notifyErr
	}
	for _, existing := range s.notifications {
		if existing.UserID == n.UserID && *existing.ActorID == *n.ActorID && existing.Type == n.Type &&
			existing.TargetType == n.TargetType && existing.TargetID == n.TargetID {
			return false, nil
		}
	}
	n.ID = s.id()
	s.notifications = append(s.notifications, *n)
	return true, nil
}

// UpsertUserGame keeps only the rating, which is all the thread rows read.
func (s *memStore) UpsertUserGame(_ context.Context, userID, gameID uint, patch models.UserGamePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Rating != nil {
		s.ratings[[2]uint{userID, gameID}] = *patch.Rating
	}
	return nil
}

func (s *memStore) ToggleFavorite(context.Context, uint, uint) error { return nil }

func (s *memStore) ListUserGames(context.Context, uint, bool, []uint) ([]models.UserGame, error) {
	return nil, nil
}

func (s *memStore) GetUserGame(context.Context, uint, uint) (*models.UserGame, error) {
	return nil, nil
}

func (s *memStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
}
