package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserRepository struct {
	users   map[string]*User
	findErr error
	lookups int
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.lookups++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	m.lookups++
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

type recordingDropper struct {
	mu      sync.Mutex
	dropped []string
}

func (d *recordingDropper) Drop(actorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped = append(d.dropped, actorID)
}

type fixture struct {
	repo    *mockUserRepository
	cache   *MemorySessionCache
	dropper *recordingDropper
	jwt     JWTManagerInterface
	service Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		repo: &mockUserRepository{users: map[string]*User{
			"m1": {
				ID: "m1", Email: "asha@example.com", Name: "Asha", PasswordHash: string(hash),
				TokenHash: "hash-1", AccountType: "MANAGEMENT", Roles: []string{"DONATION_MANAGER"},
			},
		}},
		cache:   NewMemorySessionCache(),
		dropper: &recordingDropper{},
		jwt:     NewJWTManager("test-secret"),
	}
	f.service = NewAuthService(f.repo, f.jwt, f.cache, f.dropper)
	return f
}

func TestJWTManager_AccessTokenCarriesActor(t *testing.T) {
	manager := NewJWTManager("test-secret")
	actor := domain.Actor{ID: "a1", Name: "Admin", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleAdmin}}

	token, err := manager.GenerateAccessJWT(actor, time.Minute)
	require.NoError(t, err)

	got, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
	assert.True(t, got.IsAdmin())
}

func TestJWTManager_ExpiredAndForeignTokens(t *testing.T) {
	manager := NewJWTManager("test-secret")
	actor := domain.Actor{ID: "a1"}

	expired, err := manager.GenerateAccessJWT(actor, -time.Minute)
	require.NoError(t, err)
	_, err = manager.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, ErrExpiredJWTToken)

	foreign, err := NewJWTManager("other-secret").GenerateAccessJWT(actor, time.Minute)
	require.NoError(t, err)
	_, err = manager.ValidateAccessToken(foreign)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &AccessTokenCustomClaims{UserID: "a1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = manager.ValidateAccessToken(raw)
	assert.Error(t, err)
}

func TestJWTManager_RefreshTokenBoundToHash(t *testing.T) {
	manager := NewJWTManager("test-secret")

	token, err := manager.GenerateRefreshJWT("m1", "hash-1", time.Hour)
	require.NoError(t, err)

	userID, err := manager.ExtractUserIDFromRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "m1", userID)
	assert.NoError(t, manager.ValidateRefreshToken(token, "hash-1"))
	assert.ErrorIs(t, manager.ValidateRefreshToken(token, "rotated"), ErrInvalidJWTRefreshToken)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	_, _, _, err := f.service.Login(context.Background(), "not-an-email", "x")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, _, _, err = f.service.Login(context.Background(), "asha@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, _, err = f.service.Login(context.Background(), "ghost@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, access, refresh, err := f.service.Login(context.Background(), " Asha@example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "m1", user.ID)
	assert.NotEmpty(t, refresh)

	actor, err := f.jwt.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleDonationManager}, actor.Roles)

	cached, err := f.cache.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", cached.Name)
}

func TestLogin_RepositoryFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("connection reset")

	_, _, _, err := f.service.Login(context.Background(), "asha@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInternalError)
}

func TestLogout_ClearsCacheAndDropsSession(t *testing.T) {
	f := newFixture(t)
	_, _, _, err := f.service.Login(context.Background(), "asha@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), "m1"))
	_, err = f.cache.Get(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrSessionNotCached)
	assert.Equal(t, []string{"m1"}, f.dropper.dropped)
}

func TestMemorySessionCache_Expires(t *testing.T) {
	cache := NewMemorySessionCache()
	require.NoError(t, cache.Set(context.Background(), domain.Actor{ID: "a1"}, -time.Second))

	_, err := cache.Get(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrSessionNotCached)
}

func protectedEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, actor)
	})
}

func TestAccessMiddleware(t *testing.T) {
	f := newFixture(t)
	handler := f.service.JWTAccessTokenMiddleware()(protectedEcho())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"no bearer prefix", "token", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/protected/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}

	t.Run("cold cache loads the user", func(t *testing.T) {
		token, err := f.jwt.GenerateAccessJWT(domain.Actor{ID: "m1"}, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/protected/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var actor domain.Actor
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &actor))
		assert.Equal(t, "Asha", actor.Name)
		assert.True(t, actor.HasRole(domain.RoleDonationManager))
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := f.jwt.GenerateAccessJWT(domain.Actor{ID: "ghost"}, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/protected/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestHandleLoginAndRefresh(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service)

	rr := httptest.NewRecorder()
	h.HandleLogin(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"asha@example.com","password":"s3cret-pass"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var refreshCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)

	refresh := f.service.JWTRefreshTokenMiddleware()(http.HandlerFunc(h.RefreshAccessToken))
	req := httptest.NewRequest(http.MethodPut, "/api/refresh/token", nil)
	req.AddCookie(refreshCookie)
	rr = httptest.NewRecorder()
	refresh.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "access_token")

	f.repo.users["m1"].TokenHash = "rotated"
	rr = httptest.NewRecorder()
	refresh.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleLogin_BadRequests(t *testing.T) {
	h := NewHandler(newFixture(t).service)

	for body, want := range map[string]int{
		`{`:                               http.StatusBadRequest,
		`{"email":"asha@example.com"}`:    http.StatusBadRequest,
		`{"email":"nope","password":"x"}`: http.StatusBadRequest,
		`{"email":"asha@example.com","password":"x"}`: http.StatusUnauthorized,
	} {
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))
		assert.Equal(t, want, rr.Code, body)
	}
}

func TestHandleLogout(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service)

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/protected/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/protected/auth/logout", nil)
	req = req.WithContext(WithActor(req.Context(), domain.Actor{ID: "m1"}))
	rr = httptest.NewRecorder()
	h.HandleLogout(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"m1"}, f.dropper.dropped)
}
