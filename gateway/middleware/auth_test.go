package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		HMACSecret: "s3cret",
		Issuer:     "wallet-idp",
		Audience:   "walletd",
	}, nil)
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	auth := testAuthenticator()
	token, err := auth.Sign(Identity{Subject: "u1", Name: "Asha", Roles: []string{"admin"}}, time.Hour)
	require.NoError(t, err)

	id, err := auth.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", id.Subject)
	require.Equal(t, "Asha", id.Name)
	require.True(t, id.HasRole("ADMIN"))
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := testAuthenticator()

	other := NewAuthenticator(AuthConfig{HMACSecret: "different", Issuer: "wallet-idp", Audience: "walletd"}, nil)
	forged, err := other.Sign(Identity{Subject: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(forged)
	require.Error(t, err)

	expired, err := auth.Sign(Identity{Subject: "u1"}, -time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	require.Error(t, err)

	wrongAudience := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "iss": "wallet-idp", "aud": "other", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := wrongAudience.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = auth.Verify(signed)
	require.Error(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "wallet-idp", "aud": "walletd", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err = noSubject.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = auth.Verify(signed)
	require.Error(t, err)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	auth := testAuthenticator()
	handler := auth.Middleware(RequireRole("admin")(okHandler()))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)

	userToken, err := auth.Sign(Identity{Subject: "u1"}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)

	adminToken, err := auth.Sign(Identity{Subject: "a1", Roles: []string{"admin"}}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+adminToken)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestExtractRolesShapes(t *testing.T) {
	require.Equal(t, []string{"admin", "ops"}, extractRoles(jwt.MapClaims{"role": "admin ops"}, "role"))
	require.Equal(t, []string{"admin"}, extractRoles(jwt.MapClaims{"roles": []interface{}{"admin", 3, " "}}, "roles"))
	require.Nil(t, extractRoles(jwt.MapClaims{}, "role"))
}

func TestCORSAllowList(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://wallet.example/"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/account", nil)
	req.Header.Set("Origin", "https://wallet.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://wallet.example", res.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
