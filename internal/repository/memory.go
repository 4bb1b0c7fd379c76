package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"open-mediaserver/internal/model"
)

// MemoryStore is an in-memory account and media store with the same
// atomicity guarantees as the MySQL repositories: uniqueness is decided
// under one lock with the insert, session-key assignment is conditional,
// and cascade delete is all-or-nothing. It backs the test suite.
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*model.User
	media  map[string]*model.Media
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[uint]*model.User),
		media:  make(map[string]*model.Media),
	}
}

func (s *MemoryStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username {
			return ErrDuplicateUsername
		}
	}

	user.ID = s.nextID
	s.nextID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	stored := *user
	stored.Uploads = nil
	s.users[stored.ID] = &stored
	return nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	copied.Uploads = s.uploadsLocked(id)
	return &copied, nil
}

func (s *MemoryStore) GetBySessionKey(_ context.Context, key string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.SessionKey != "" && user.SessionKey == key {
			copied := *user
			copied.Uploads = s.uploadsLocked(user.ID)
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SetSessionKeyIfAbsent(_ context.Context, id uint, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok || user.SessionKey != "" {
		return false, nil
	}
	user.SessionKey = key
	return true, nil
}

func (s *MemoryStore) DeleteWithUploads(_ context.Context, id uint, mediaIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mediaID := range mediaIDs {
		delete(s.media, mediaID)
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) CreateMedia(_ context.Context, media *model.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now().UTC()
	}
	copied := *media
	s.media[copied.ID] = &copied
	return nil
}

// ListByUserID lists the media rows owned by userID, satisfying the same
// contract as the MySQL media repository.
func (s *MemoryStore) ListByUserID(_ context.Context, userID uint) ([]model.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadsLocked(userID), nil
}

func (s *MemoryStore) GetMediaByID(_ context.Context, id string) (*model.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	media, ok := s.media[id]
	if !ok {
		return nil, nil
	}
	copied := *media
	return &copied, nil
}

func (s *MemoryStore) uploadsLocked(userID uint) []model.Media {
	var uploads []model.Media
	for _, media := range s.media {
		if media.UserID == userID {
			uploads = append(uploads, *media)
		}
	}
	return uploads
}
