package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pawboard/pawboard/internal/hash"
	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/tokenstore"
	"github.com/pawboard/pawboard/pkg/logging"
	"github.com/pawboard/pawboard/pkg/tokens"
)

type TokenService struct {
	Repo       repo.GormRepo
	Store      tokenstore.Store
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// newRefreshToken returns an opaque credential; the value itself carries no
// claims, the store entry is the only thing that makes it valid.
func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *TokenService) IssuePair(ctx context.Context, user *models.User) (*Pair, error) {
	if user.Blocked {
		return nil, ErrUserBlocked
	}

	accessExp := time.Now().Add(s.AccessTTL)
	accessToken, err := tokens.Sign(user.ID.String(), user.Role, accessExp, s.Secret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := time.Now().Add(s.RefreshTTL)
	if err := s.Store.Save(ctx, refreshToken, user.ID.String(), s.RefreshTTL); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// VerifyAccess is a pure signature+expiry check; it never touches the store
// or the user table.
func (s *TokenService) VerifyAccess(token string) (*tokens.AccessClaims, error) {
	return tokens.Parse(token, s.Secret)
}

// Rotate consumes oldRefresh and issues a fresh pair. The old entry is
// deleted before the user re-check so a half-failed rotation can never be
// replayed.
func (s *TokenService) Rotate(ctx context.Context, oldRefresh string) (*Pair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "token.rotate")

	userIDStr, err := s.Store.Resolve(ctx, oldRefresh)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}

	if err := s.Store.Delete(ctx, oldRefresh); err != nil {
		return nil, nil, err
	}

	user, err := s.resolveUser(ctx, userIDStr)
	if err != nil {
		l.Warn("rotation_rejected", "reason", err.Error())
		return nil, nil, err
	}

	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Revoke is idempotent; revoking an unknown credential is not an error.
func (s *TokenService) Revoke(ctx context.Context, refresh string) error {
	return s.Store.Delete(ctx, refresh)
}

func (s *TokenService) Login(ctx context.Context, email, password string) (*Pair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "token.login")

	if email == "" || password == "" {
		return nil, nil, ErrValidation
	}

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if user.Blocked {
		l.Warn("login_rejected", "reason", "user blocked")
		return nil, nil, ErrUserBlocked
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	l.Info("login_successful")
	return pair, user, nil
}

func (s *TokenService) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	if _, err := s.Repo.UserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *TokenService) resolveUser(ctx context.Context, userIDStr string) (*models.User, error) {
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Blocked {
		return nil, ErrUserBlocked
	}
	return user, nil
}
