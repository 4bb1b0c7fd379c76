package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"open-mediaserver/internal/model"
	"open-mediaserver/internal/pkg/passhash"
	"open-mediaserver/internal/pkg/sessionkey"
	"open-mediaserver/internal/repository"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUsernameTaken         = errors.New("username already in use")
	ErrUnknownUser           = errors.New("no account associated with that username")
	ErrInvalidCredential     = errors.New("invalid username or password")
	ErrInternalInconsistency = errors.New("account record vanished mid-operation")
)

// UserRepository is the durable store of user records and their uploads
// work-list. Lookups return (nil, nil) when no record matches. Create must
// enforce username uniqueness atomically at the storage layer and report a
// violation as repository.ErrDuplicateUsername.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetBySessionKey(ctx context.Context, key string) (*model.User, error)
	SetSessionKeyIfAbsent(ctx context.Context, id uint, key string) (bool, error)
	DeleteWithUploads(ctx context.Context, id uint, mediaIDs []string) error
}

// MediaRepository reads the media records the account subsystem reports on.
// Ownership of those records stays with the media subsystem.
type MediaRepository interface {
	ListByUserID(ctx context.Context, userID uint) ([]model.Media, error)
}

// SessionCache is a fast session-key to user-id lookup in front of the
// repository. Misses are not errors.
type SessionCache interface {
	Get(ctx context.Context, key string) (uint, bool, error)
	Set(ctx context.Context, key string, userID uint) error
	Delete(ctx context.Context, key string) error
}

// PurgePublisher hands blob-cleanup work to the media purge queue.
type PurgePublisher interface {
	Publish(ctx context.Context, purge model.MediaPurge) error
}

type AccountService struct {
	userRepo  UserRepository
	mediaRepo MediaRepository
	sessions  SessionCache
	purge     PurgePublisher
}

type RegisterInput struct {
	Username string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type DeleteInput struct {
	Username    string
	Password    string
	DeleteMedia bool
}

// LoginResult carries the durable session key plus whether this login
// bootstrapped it. The HTTP boundary decides whether a cookie is (re)sent.
type LoginResult struct {
	SessionKey   string
	Bootstrapped bool
}

func NewAccountService(userRepo UserRepository, mediaRepo MediaRepository, sessions SessionCache, purge PurgePublisher) *AccountService {
	return &AccountService{
		userRepo:  userRepo,
		mediaRepo: mediaRepo,
		sessions:  sessions,
		purge:     purge,
	}
}

// Register creates a new account. The session key is issued immediately at
// registration rather than deferred to first login.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (string, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return "", ErrInvalidInput
	}

	salt, err := passhash.GenerateSalt()
	if err != nil {
		return "", err
	}
	key, err := sessionkey.Generate()
	if err != nil {
		return "", err
	}

	user := &model.User{
		Username:     username,
		PasswordHash: passhash.Derive(input.Password, salt),
		Salt:         salt,
		SessionKey:   key,
	}
	// Uniqueness is decided by the insert itself, not by a prior read, so
	// two concurrent registrations cannot both pass an existence check.
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return "", ErrUsernameTaken
		}
		return "", err
	}

	log.Printf("registered account %q (id %d)", user.Username, user.ID)
	return key, nil
}

// Login verifies credentials and returns the account's durable session key,
// generating and persisting it on first login.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	if !passhash.Verify(input.Password, user.Salt, user.PasswordHash) {
		return nil, ErrInvalidCredential
	}

	if user.SessionKey != "" {
		return &LoginResult{SessionKey: user.SessionKey}, nil
	}

	key, err := sessionkey.Generate()
	if err != nil {
		return nil, err
	}
	claimed, err := s.userRepo.SetSessionKeyIfAbsent(ctx, user.ID, key)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// A concurrent first login won the assignment; serve its key so the
		// cookie already handed out stays valid.
		current, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if current == nil || current.SessionKey == "" {
			return nil, ErrInternalInconsistency
		}
		return &LoginResult{SessionKey: current.SessionKey}, nil
	}

	log.Printf("bootstrapped session for account %q", user.Username)
	return &LoginResult{SessionKey: key, Bootstrapped: true}, nil
}

// Delete removes the account and, when requested, every upload it owns.
// Database rows go synchronously and all-or-nothing; blob files are purged
// asynchronously afterwards.
func (s *AccountService) Delete(ctx context.Context, input DeleteInput) error {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return ErrInvalidInput
	}

	found, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if found == nil {
		return ErrUnknownUser
	}

	// Re-fetch with the uploads work-list. The record vanishing between the
	// two lookups is an internal inconsistency, not a validation failure.
	user, err := s.userRepo.GetByID(ctx, found.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInternalInconsistency
	}

	if !passhash.Verify(input.Password, user.Salt, user.PasswordHash) {
		return ErrInvalidCredential
	}

	var mediaIDs []string
	var blobPaths []string
	if input.DeleteMedia {
		for _, media := range user.Uploads {
			mediaIDs = append(mediaIDs, media.ID)
			blobPaths = append(blobPaths, media.BlobPath)
		}
	}

	if err := s.userRepo.DeleteWithUploads(ctx, user.ID, mediaIDs); err != nil {
		return err
	}

	if user.SessionKey != "" {
		if err := s.sessions.Delete(ctx, user.SessionKey); err != nil {
			log.Printf("evict session for deleted account %q failed: %v", user.Username, err)
		}
	}
	if len(blobPaths) > 0 {
		purge := model.MediaPurge{
			UserID:    user.ID,
			Username:  user.Username,
			BlobPaths: blobPaths,
		}
		if err := s.purge.Publish(ctx, purge); err != nil {
			log.Printf("enqueue media purge for account %q failed: %v", user.Username, err)
		}
	}

	log.Printf("deleted account %q (id %d, media rows %d)", user.Username, user.ID, len(mediaIDs))
	return nil
}

// ListUploads returns the media records owned by an account.
func (s *AccountService) ListUploads(ctx context.Context, userID uint) ([]model.Media, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.mediaRepo.ListByUserID(ctx, userID)
}

// ResolveSession maps a session cookie value back to its account, serving
// from the cache when possible. Returns (nil, nil) for unknown keys.
func (s *AccountService) ResolveSession(ctx context.Context, key string) (*model.User, error) {
	if key == "" {
		return nil, nil
	}

	userID, ok, err := s.sessions.Get(ctx, key)
	if err != nil {
		log.Printf("session cache lookup failed: %v", err)
	}
	if ok {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user != nil && user.SessionKey == key {
			return user, nil
		}
		// Stale cache entry, fall through to the repository.
	}

	user, err := s.userRepo.GetBySessionKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if err := s.sessions.Set(ctx, key, user.ID); err != nil {
		log.Printf("session cache store failed: %v", err)
	}
	return user, nil
}
