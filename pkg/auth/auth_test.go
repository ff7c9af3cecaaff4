package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

const testKid = "test-key-1"

// newJWKSServer serves a one-key JWKS document for the given private key
func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	doc := jwksDocument{Keys: []jwksKey{{
		Kty: "RSA",
		Kid: testKid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(server.Close)
	return server
}

type testClaims map[string]interface{}

func signPlatformToken(t *testing.T, key *rsa.PrivateKey, override testClaims) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "https://auth.example.com",
		"sub":   "user-123",
		"aud":   "authenticated",
		"email": "dev@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	for k, v := range override {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestService(t *testing.T, jwksURL string) *Service {
	t.Helper()
	return NewService(ServiceConfig{
		PlatformIssuer: "https://auth.example.com",
		JWKSURL:        jwksURL,
		Audience:       "agenthub",
		APITokenSecret: "test-secret",
		ClockSkew:      30 * time.Second,
	}, observability.NewNoopLogger())
}

func TestVerifyPlatformToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, key)
	service := newTestService(t, server.URL)
	ctx := context.Background()

	t.Run("valid token with default audience", func(t *testing.T) {
		principal, err := service.Verify(ctx, signPlatformToken(t, key, nil))
		require.NoError(t, err)
		assert.Equal(t, "user-123", principal.UserID)
		assert.Equal(t, "dev@example.com", principal.Email)
		assert.Equal(t, TokenTypePlatform, principal.TokenType)
		assert.Contains(t, principal.Scopes, DefaultScope)
	})

	t.Run("valid token with configured audience", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"aud": "agenthub"})
		principal, err := service.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "user-123", principal.UserID)
	})

	t.Run("bearer prefix is stripped", func(t *testing.T) {
		raw := "Bearer " + signPlatformToken(t, key, nil)
		_, err := service.Verify(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"aud": "somewhere-else"})
		_, err := service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrAudienceMismatch)
	})

	t.Run("expired", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"exp": time.Now().Add(-time.Hour).Unix()})
		_, err := service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("expired within clock skew is accepted", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"exp": time.Now().Add(-10 * time.Second).Unix()})
		_, err := service.Verify(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("not yet valid", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"nbf": time.Now().Add(time.Hour).Unix()})
		_, err := service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"iss": "https://evil.example.com"})
		_, err := service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		raw := signPlatformToken(t, key, testClaims{"sub": nil})
		_, err := service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("foreign signature", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		raw := signPlatformToken(t, otherKey, nil)
		_, err = service.Verify(ctx, raw)
		assert.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := service.Verify(ctx, "   ")
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestVerifyAPIToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, key)
	service := newTestService(t, server.URL)
	ctx := context.Background()

	t.Run("issued token round-trips", func(t *testing.T) {
		raw, err := service.IssueAPIToken("user-api-1", "api@example.com", []string{"mcp:access"}, time.Hour)
		require.NoError(t, err)

		principal, err := service.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "user-api-1", principal.UserID)
		assert.Equal(t, TokenTypeAPI, principal.TokenType)
		assert.True(t, principal.HasScope("mcp:access"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(ServiceConfig{APITokenSecret: "other-secret", ClockSkew: time.Second}, observability.NewNoopLogger())
		raw, err := other.IssueAPIToken("user-api-1", "", nil, time.Hour)
		require.NoError(t, err)
		_, err = service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":  "user-api-1",
			"aud":  "someone-else",
			"type": "api_token",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrAudienceMismatch)
	})

	t.Run("missing type claim", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "user-api-1",
			"aud": APITokenAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		raw, err := service.IssueAPIToken("user-api-1", "", nil, -time.Hour)
		require.NoError(t, err)
		_, err = service.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

// A structurally valid platform token whose claims fail must not fall
// through to the API path and come back as a signature problem.
func TestVerifyNoCrossPathFallback(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, key)
	service := newTestService(t, server.URL)

	raw := signPlatformToken(t, key, testClaims{"aud": "wrong"})
	_, err = service.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrAudienceMismatch)
	assert.NotErrorIs(t, err, ErrSignatureInvalid)
}

func TestPrincipalHelpers(t *testing.T) {
	p := &Principal{UserID: "u", Roles: []string{RoleAdmin}, Scopes: []string{"a", "b"}}
	assert.True(t, p.IsAdmin())
	assert.True(t, p.HasScope("a"))
	assert.False(t, p.HasScope("c"))
	assert.False(t, (&Principal{}).IsAdmin())
}
