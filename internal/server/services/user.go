// Package services contains server-side business logic: access decisions,
// share tokens, file storage, and the identity provider. This file
// implements UserService, which handles registration, login, and
// issuing/refreshing JWTs plus server-stored refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/auth"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 6
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
}

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint tokens
// - Refresh: rotate refresh tokens and mint new access tokens
// - ValidateBearerToken: map an access token to a user id
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	// dummyHash is verified against when the user does not exist, so a
	// missing account costs the same time as a wrong password.
	dummyHash string
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		logger:                       logger.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		dummyHash:                    auth.HashPassword("dummy password"),
	}
}

// Register creates a new user. Usernames are 3..64 characters, passwords at
// least 6; a taken username yields common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, username, password, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if l := len(username); l < minUsernameLen || l > maxUsernameLen {
		return nil, fmt.Errorf("username must be %d to %d characters: %w", minUsernameLen, maxUsernameLen, common.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, common.ErrValidation)
	}

	user := &models.User{UserName: username, Email: strings.TrimSpace(email), PasswordHash: auth.HashPassword(password)}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies the password and, on success, returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, userName, password string) (*TokenPair, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, strings.TrimSpace(userName))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = auth.VerifyPassword(password, s.dummyHash)
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// Refresh validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired; a
// token consumed by a concurrent rotation yields ErrorUnauthorized.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if !token.Expires.After(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// ValidateBearerToken returns the user id carried by an access token.
func (s *UserService) ValidateBearerToken(_ context.Context, token string) (int64, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repomanager.Users(s.db).GetUserByID(ctx, id)
}

// CleanupExpiredRefreshTokens drops refresh tokens that can no longer be used.
func (s *UserService) CleanupExpiredRefreshTokens(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired refresh tokens removed", "count", n)
	}
	return n, nil
}

// --- helpers below ---

func (s *UserService) generateAccessToken(userID int64) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID int64, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, time.Now().UTC().Add(s.refreshTokenValidityDuration)); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, UserID: userID}, nil
}
