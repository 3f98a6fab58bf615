package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "panel-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "merchant-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func TestPanelAuth(t *testing.T) {
	env := newTestEnv(t, testSecret)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noExp := validClaims()
	noExp.ExpiresAt = nil
	noSub := validClaims()
	noSub.Subject = ""

	testCases := map[string]struct {
		header string
		want   int
	}{
		"missing header":  {header: "", want: http.StatusUnauthorized},
		"wrong scheme":    {header: "Basic abc", want: http.StatusUnauthorized},
		"valid token":     {header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), want: http.StatusOK},
		"lowercase token": {header: "bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), want: http.StatusOK},
		"wrong secret":    {header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), want: http.StatusUnauthorized},
		"wrong algorithm": {header: "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), want: http.StatusUnauthorized},
		"expired":         {header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), want: http.StatusUnauthorized},
		"no expiry":       {header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExp), want: http.StatusUnauthorized},
		"no subject":      {header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSub), want: http.StatusUnauthorized},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{"Authorization", tc.header}
			}
			rec := do(env.router, http.MethodGet, "/panel/baskets", "", headers...)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestPanelAuth_StorefrontIsPublic(t *testing.T) {
	env := newTestEnv(t, testSecret)
	assert.Equal(t, http.StatusOK, do(env.router, http.MethodGet, "/products", "").Code)
}

func TestBearerToken(t *testing.T) {
	tok, err := bearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	_, err = bearerToken("Bearer ")
	assert.Error(t, err)
}
