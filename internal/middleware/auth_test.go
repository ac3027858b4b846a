package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nkarpova/market_auth/internal/audit"
	"github.com/nkarpova/market_auth/internal/events"
	"github.com/nkarpova/market_auth/internal/models"
	"github.com/nkarpova/market_auth/internal/repo"
	"github.com/nkarpova/market_auth/internal/service"
	pkg_hash "github.com/nkarpova/market_auth/pkg/hash"
	"github.com/nkarpova/market_auth/pkg/tokens"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Account{}))

	return NewAuth(&service.SessionService{
		Repo:       &repo.GormRepo{DB: db},
		Codec:      tokens.NewCodec([]byte("test-secret"), "market-auth-test"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Events:     events.Nop{},
		Audit:      audit.Nop{},
	})
}

func seedAccount(t *testing.T, m *Auth, username, role string, active bool) *models.Account {
	t.Helper()

	hashed, err := pkg_hash.HashPassword("test-password")
	require.NoError(t, err)

	acc := &models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
		Active:       active,
		ProfileID:    uuid.NewString(),
	}
	require.NoError(t, m.Sessions.Repo.Create(context.Background(), acc))
	return acc
}

func accessTokenFor(t *testing.T, m *Auth, acc *models.Account) string {
	t.Helper()

	token, err := m.Sessions.Codec.Issue(tokens.Identity{
		AccountID: acc.ID,
		Username:  acc.Username,
		Role:      acc.Role,
		ProfileID: acc.ProfileID,
	}, 15*time.Minute)
	require.NoError(t, err)
	return token
}

func newContext(token string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(called *bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		*called = true
		return c.NoContent(http.StatusOK)
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)

	var called bool
	err := m.Authenticate(okHandler(&called))(newContext(""))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, called)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)

	var called bool
	err := m.Authenticate(okHandler(&called))(newContext("not-a-token"))

	require.Error(t, err)
	assert.ErrorIs(t, err, tokens.ErrInvalid)
	assert.False(t, called)
}

func TestAuthenticate_AttachesIdentity(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)
	acc := seedAccount(t, m, "alice", models.RoleClient, true)
	token := accessTokenFor(t, m, acc)

	c := newContext(token)
	err := m.Authenticate(func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		require.True(t, ok)
		assert.Equal(t, acc.ID, id.AccountID)
		assert.Equal(t, "alice", id.Username)
		assert.Equal(t, models.RoleClient, id.Role)
		assert.Equal(t, acc.ProfileID, id.ProfileID)
		return c.NoContent(http.StatusOK)
	})(c)

	require.NoError(t, err)
}

func TestAuthenticate_DeactivatedAccount(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)
	acc := seedAccount(t, m, "alice", models.RoleClient, true)
	token := accessTokenFor(t, m, acc)

	require.NoError(t, m.Sessions.Deactivate(context.Background(), acc.ID))

	var called bool
	err := m.Authenticate(okHandler(&called))(newContext(token))

	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.False(t, called)
}

func TestOptionalAuthenticate(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)
	acc := seedAccount(t, m, "alice", models.RoleClient, true)

	tests := []struct {
		name         string
		token        string
		wantIdentity bool
	}{
		{name: "no token", token: "", wantIdentity: false},
		{name: "bad token", token: "garbage", wantIdentity: false},
		{name: "valid token", token: accessTokenFor(t, m, acc), wantIdentity: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			err := m.OptionalAuthenticate(func(c echo.Context) error {
				called = true
				_, ok := IdentityFrom(c)
				assert.Equal(t, tt.wantIdentity, ok)
				return c.NoContent(http.StatusOK)
			})(newContext(tt.token))

			require.NoError(t, err)
			assert.True(t, called)
		})
	}
}

func TestRoleAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		role    string
		allowed []string
		want    bool
	}{
		{name: "in set", role: models.RoleAdmin, allowed: []string{models.RoleAdmin}, want: true},
		{name: "in larger set", role: models.RoleClient, allowed: []string{models.RoleClient, models.RoleAdmin}, want: true},
		{name: "not in set", role: models.RoleClient, allowed: []string{models.RoleAdmin}, want: false},
		{name: "empty set", role: models.RoleAdmin, allowed: nil, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RoleAllowed(tt.role, tt.allowed))
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)

	run := func(identity *tokens.Identity, allowed ...string) (bool, error) {
		c := newContext("")
		if identity != nil {
			c.Set(identityKey, *identity)
		}
		var called bool
		err := m.RequireRole(allowed...)(okHandler(&called))(c)
		return called, err
	}

	called, err := run(&tokens.Identity{Role: models.RoleAdmin}, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, called)

	called, err = run(&tokens.Identity{Role: models.RoleClient}, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.False(t, called)

	called, err = run(nil, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, called)
}

func TestRequireOwnershipOrRole(t *testing.T) {
	t.Parallel()

	m := newTestAuth(t)

	accountID := uuid.NewString()
	profileID := uuid.NewString()

	run := func(identity tokens.Identity, resourceID string) (bool, error) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(resourceID)
		c.Set(identityKey, identity)

		var called bool
		err := m.RequireOwnershipOrRole()(okHandler(&called))(c)
		return called, err
	}

	client := tokens.Identity{AccountID: accountID, Role: models.RoleClient, ProfileID: profileID}

	// Self by account id.
	called, err := run(client, accountID)
	require.NoError(t, err)
	assert.True(t, called)

	// Self by profile id.
	called, err = run(client, profileID)
	require.NoError(t, err)
	assert.True(t, called)

	// Someone else's resource.
	called, err = run(client, uuid.NewString())
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.False(t, called)

	// Admin reaches anything.
	admin := tokens.Identity{AccountID: uuid.NewString(), Role: models.RoleAdmin, ProfileID: uuid.NewString()}
	called, err = run(admin, uuid.NewString())
	require.NoError(t, err)
	assert.True(t, called)
}
