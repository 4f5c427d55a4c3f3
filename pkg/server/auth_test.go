package server

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fakeValidator(ctx context.Context, token string) (tokenClaims, error) {
	switch token {
	case "admin-token":
		return tokenClaims{Subject: "1", Email: "admin@example.com", EmailVerified: true}, nil
	case "user-token":
		return tokenClaims{Subject: "2", Email: "user@example.com", EmailVerified: true}, nil
	case "unverified-token":
		return tokenClaims{Subject: "3", Email: "admin@example.com"}, nil
	}
	return tokenClaims{}, assert.AnError
}

func TestAuthMiddleware(t *testing.T) {
	c := new(mockClient)
	c.On("Authenticated").Return(false)
	s := newTestServer(c, storage.NewMemory())
	s.bypassAuth = false
	s.adminEmails = []string{"Admin@example.com"}
	s.tokenValidator = fakeValidator

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"unverified email", "Bearer unverified-token", http.StatusUnauthorized},
		{"not admin", "Bearer user-token", http.StatusForbidden},
		{"admin", "Bearer admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := serve(s, req)
			assert.Equal(t, tt.code, rr.Code)
		})
	}

	t.Run("healthz is public", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("no admins rejects every email", func(t *testing.T) {
		lc := new(mockClient)
		s := newTestServer(lc, storage.NewMemory())
		s.bypassAuth = false
		s.oidcAudience = "test-audience"
		s.tokenValidator = func(ctx context.Context, token string) (tokenClaims, error) {
			return tokenClaims{Subject: "9", Email: "stranger@example.com", EmailVerified: true}, nil
		}

		for _, path := range []string{"/api/meters", "/api/status"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Authorization", "Bearer any-token")
			assert.Equal(t, http.StatusForbidden, serve(s, req).Code, path)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
		req.Header.Set("Authorization", "Bearer any-token")
		assert.Equal(t, http.StatusForbidden, serve(s, req).Code)

		lc.AssertNotCalled(t, "ListMeters", mock.Anything)
	})

	t.Run("no validator", func(t *testing.T) {
		s := newTestServer(c, storage.NewMemory())
		s.bypassAuth = false

		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)
	})
}

const testIssuer = "https://issuer.example.com"

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func TestOIDCValidator(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := oidc.NewVerifier(
		testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&oidc.Config{ClientID: "test-audience"},
	)
	validate := oidcValidator(verifier)

	claims := func(aud string, exp time.Time) map[string]any {
		return map[string]any{
			"iss":            testIssuer,
			"aud":            aud,
			"sub":            "user-1",
			"iat":            time.Now().Add(-time.Minute).Unix(),
			"exp":            exp.Unix(),
			"email":          "admin@example.com",
			"email_verified": true,
		}
	}

	t.Run("valid", func(t *testing.T) {
		got, err := validate(context.Background(), signToken(t, key, claims("test-audience", time.Now().Add(time.Hour))))
		require.NoError(t, err)
		assert.Equal(t, tokenClaims{Subject: "user-1", Email: "admin@example.com", EmailVerified: true}, got)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := validate(context.Background(), signToken(t, key, claims("other", time.Now().Add(time.Hour))))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := validate(context.Background(), signToken(t, key, claims("test-audience", time.Now().Add(-time.Hour))))
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = validate(context.Background(), signToken(t, other, claims("test-audience", time.Now().Add(time.Hour))))
		assert.Error(t, err)
	})

	t.Run("through middleware", func(t *testing.T) {
		c := new(mockClient)
		c.On("Authenticated").Return(true)
		s := newTestServer(c, storage.NewMemory())
		s.bypassAuth = false
		s.adminEmails = []string{"admin@example.com"}
		s.tokenValidator = validate

		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, claims("test-audience", time.Now().Add(time.Hour))))
		assert.Equal(t, http.StatusOK, serve(s, req).Code)
	})
}
