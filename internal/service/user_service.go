package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamsession/api/internal/apperr"
	"github.com/jamsession/api/internal/auth"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration, login and profile lookups
type UserService struct {
	store      store.Store
	tokens     *auth.TokenIssuer
	bcryptCost int
	now        func() time.Time
}

func NewUserService(s store.Store, tokens *auth.TokenIssuer, bcryptCost int) *UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		store:      s,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Register creates an account. Usernames are unique and every role must come
// from the catalog.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" || len(req.Roles) == 0 {
		return nil, apperr.Validation("Invalid registration data - userName, password and roles are required")
	}
	roles, err := role.ParseAll(req.Roles)
	if err != nil {
		return nil, apperr.Validation("Invalid role choice: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	u := &model.User{
		Username:     username,
		PasswordHash: string(hash),
		Roles:        roles,
		PastJamIDs:   []int64{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.ConflictDuplicate, "Username %s is already taken", username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Login checks the password and issues an access token.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Validation("Invalid username or password")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Validation("Invalid username or password")
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        model.NewUserResponse(u),
	}, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return u, nil
}
