package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInternalError      = errors.New("internal Server Error")
)

// SessionDropper releases everything held for an actor when they log out.
type SessionDropper interface {
	Drop(actorID string)
}

type Service interface {
	Login(ctx context.Context, email, password string) (*User, string, string, error)
	Logout(ctx context.Context, actorID string) error
	RefreshAccessToken(ctx context.Context, userID string) (string, string, error)
	JWTAccessTokenMiddleware() func(http.Handler) http.Handler
	JWTRefreshTokenMiddleware() func(http.Handler) http.Handler
}

type service struct {
	repo       UserRepository
	jwtManager JWTManagerInterface
	cache      SessionCache
	sessions   SessionDropper
}

func NewAuthService(repo UserRepository, jwtManager JWTManagerInterface, cache SessionCache, sessions SessionDropper) Service {
	return &service{
		repo:       repo,
		jwtManager: jwtManager,
		cache:      cache,
		sessions:   sessions,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*User, string, string, error) {
	email = strings.TrimSpace(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, "", "", ErrInvalidEmail
	}

	existingUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", "", ErrInvalidCredentials
		}
		log.Printf("level=error component=auth msg=\"user lookup failed\" err=%q", err)
		return nil, "", "", ErrInternalError
	}

	if !doPasswordsMatch(existingUser.PasswordHash, password) {
		return nil, "", "", ErrInvalidCredentials
	}

	actor := existingUser.Actor()
	accessToken, err := s.jwtManager.GenerateAccessJWT(actor, defaultJWTDuration)
	if err != nil {
		return nil, "", "", ErrInternalError
	}
	refreshToken, err := s.jwtManager.GenerateRefreshJWT(existingUser.ID, existingUser.TokenHash, defaultJWTRefreshDuration)
	if err != nil {
		return nil, "", "", ErrInternalError
	}

	if err := s.cache.Set(ctx, actor, defaultSessionCacheDuration); err != nil {
		log.Printf("level=warn component=auth msg=\"session cache write failed\" actor=%s err=%q", actor.ID, err)
	}
	return existingUser, accessToken, refreshToken, nil
}

func (s *service) Logout(ctx context.Context, actorID string) error {
	s.sessions.Drop(actorID)
	if err := s.cache.Clear(ctx, actorID); err != nil {
		log.Printf("level=warn component=auth msg=\"session cache clear failed\" actor=%s err=%q", actorID, err)
		return ErrInternalError
	}
	return nil
}

func (s *service) RefreshAccessToken(ctx context.Context, userID string) (string, string, error) {
	existingUser, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", "", ErrUserNotFound
		}
		return "", "", ErrInternalError
	}

	actor := existingUser.Actor()
	accessToken, err := s.jwtManager.GenerateAccessJWT(actor, defaultJWTDuration)
	if err != nil {
		return "", "", ErrInternalError
	}
	refreshToken, err := s.jwtManager.GenerateRefreshJWT(existingUser.ID, existingUser.TokenHash, defaultJWTRefreshDuration)
	if err != nil {
		return "", "", ErrInternalError
	}
	if err := s.cache.Set(ctx, actor, defaultSessionCacheDuration); err != nil {
		log.Printf("level=warn component=auth msg=\"session cache write failed\" actor=%s err=%q", actor.ID, err)
	}
	return accessToken, refreshToken, nil
}

// resolveActor prefers the cached last-known user and falls back to the users
// table, refreshing the cache. Token claims fill in when both are unavailable.
func (s *service) resolveActor(ctx context.Context, claims domain.Actor) (domain.Actor, error) {
	if actor, err := s.cache.Get(ctx, claims.ID); err == nil {
		return actor, nil
	} else if !errors.Is(err, ErrSessionNotCached) {
		log.Printf("level=warn component=auth msg=\"session cache read failed\" actor=%s err=%q", claims.ID, err)
		return claims, nil
	}

	existingUser, err := s.repo.FindByID(ctx, claims.ID)
	if err != nil {
		return domain.Actor{}, err
	}
	actor := existingUser.Actor()
	if err := s.cache.Set(ctx, actor, defaultSessionCacheDuration); err != nil {
		log.Printf("level=warn component=auth msg=\"session cache write failed\" actor=%s err=%q", actor.ID, err)
	}
	return actor, nil
}

func doPasswordsMatch(hashedPassword, currPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(currPassword))
	return err == nil
}
