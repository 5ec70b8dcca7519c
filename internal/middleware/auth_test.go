package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"glimmer/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func setupAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	InitMiddleware(&config.Config{JWTSecret: testSecret})

	app := fiber.New()
	app.Get("/protected", AuthRequired, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})
	app.Get("/ws-protected", WebSocketAuthRequired, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})
	return app
}

func signedToken(t *testing.T, userID uint, exp time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(exp).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestAuthRequired(t *testing.T) {
	app := setupAuthApp(t)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token", "Bearer " + signedToken(t, 42, time.Hour), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "NotBearer xyz", http.StatusUnauthorized},
		{"expired token", "Bearer " + signedToken(t, 42, -time.Hour), http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestWebSocketAuthRequired_QueryToken(t *testing.T) {
	app := setupAuthApp(t)

	req := httptest.NewRequest(http.MethodGet, "/ws-protected?token="+signedToken(t, 7, time.Hour), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketAuthRequired_HeaderFallback(t *testing.T) {
	app := setupAuthApp(t)

	req := httptest.NewRequest(http.MethodGet, "/ws-protected", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, 7, time.Hour))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bare := httptest.NewRequest(http.MethodGet, "/ws-protected", nil)
	resp, err = app.Test(bare)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMintToken_RoundTrips(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: testSecret})

	token, err := MintToken(testSecret, 123)
	require.NoError(t, err)

	userID, err := parseUserID(token)
	require.NoError(t, err)
	assert.Equal(t, uint(123), userID)
}
