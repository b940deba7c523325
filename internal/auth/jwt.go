package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

var (
	ErrInvalidJWTToken        = errors.New("JWT token is invalid")
	ErrExpiredJWTToken        = errors.New("JWT token is expired")
	ErrInvalidJWTRefreshToken = errors.New("JWT Refresh token is invalid")
)

const defaultJWTRefreshDuration = 720 * time.Hour
const defaultJWTDuration = 15 * time.Minute

type JWTManagerInterface interface {
	GenerateAccessJWT(actor domain.Actor, duration time.Duration) (string, error)
	ValidateAccessToken(tokenString string) (domain.Actor, error)
	GenerateRefreshJWT(userID, tokenHash string, duration time.Duration) (string, error)
	ValidateRefreshToken(tokenString, tokenHash string) error
	ExtractUserIDFromRefreshToken(tokenString string) (string, error)
}

// AccessTokenCustomClaims carries everything the capability resolver needs so a
// request never has to reload the user to evaluate roles.
type AccessTokenCustomClaims struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	AccountType string   `json:"account_type"`
	Roles       []string `json:"roles"`
	jwt.StandardClaims
}

type RefreshTokenCustomClaims struct {
	UserID string `json:"user_id"`
	CusKey string `json:"cus_key"`
	jwt.StandardClaims
}

type JWTManager struct {
	secret string
}

func NewJWTManager(secret string) JWTManagerInterface {
	return &JWTManager{secret: secret}
}

func (j *JWTManager) generateCustomKey(userID string, tokenHash string) string {
	h := hmac.New(sha256.New, []byte(tokenHash))
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

func (j *JWTManager) GenerateRefreshJWT(userID, tokenHash string, duration time.Duration) (string, error) {
	claims := &RefreshTokenCustomClaims{
		UserID: userID,
		CusKey: j.generateCustomKey(userID, tokenHash),
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(duration).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secret))
}

func (j *JWTManager) GenerateAccessJWT(actor domain.Actor, duration time.Duration) (string, error) {
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	claims := &AccessTokenCustomClaims{
		UserID:      actor.ID,
		Name:        actor.Name,
		AccountType: string(actor.AccountType),
		Roles:       roles,
		StandardClaims: jwt.StandardClaims{
			Subject:   actor.ID,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(duration).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secret))
}

func (j *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidJWTToken
	}
	return []byte(j.secret), nil
}

func (j *JWTManager) ValidateAccessToken(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenCustomClaims{}, j.keyFunc)
	if err != nil {
		return domain.Actor{}, mapValidationError(err)
	}

	claims, ok := token.Claims.(*AccessTokenCustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Actor{}, ErrInvalidJWTToken
	}
	return claims.actor(), nil
}

func (c *AccessTokenCustomClaims) actor() domain.Actor {
	roles := make([]domain.Role, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = domain.Role(r)
	}
	return domain.Actor{
		ID:          c.UserID,
		Name:        c.Name,
		AccountType: domain.AccountType(c.AccountType),
		Roles:       roles,
	}
}

func (j *JWTManager) ExtractUserIDFromRefreshToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshTokenCustomClaims{}, j.keyFunc)
	if err != nil {
		return "", mapValidationError(err)
	}

	claims, ok := token.Claims.(*RefreshTokenCustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidJWTToken
	}
	return claims.UserID, nil
}

// ValidateRefreshToken also checks the token is bound to the user's current token
// hash, so rotating the hash revokes every refresh token issued before.
func (j *JWTManager) ValidateRefreshToken(tokenString, tokenHash string) error {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshTokenCustomClaims{}, j.keyFunc)
	if err != nil {
		return mapValidationError(err)
	}

	claims, ok := token.Claims.(*RefreshTokenCustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return ErrInvalidJWTToken
	}
	if !hmac.Equal([]byte(claims.CusKey), []byte(j.generateCustomKey(claims.UserID, tokenHash))) {
		return ErrInvalidJWTRefreshToken
	}
	return nil
}

func mapValidationError(err error) error {
	var validationErr *jwt.ValidationError
	if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
		return ErrExpiredJWTToken
	}
	return err
}
