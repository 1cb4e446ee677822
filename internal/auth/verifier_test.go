package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometour/api/internal/config"
)

func TestHMACVerifier_IssueAndValidate(t *testing.T) {
	v := NewHMACVerifier(&config.JWTConfig{Secret: "s3cret", Expiration: 1})

	token, err := v.Issue("user-1", "agent@example.com")
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Identity())
	assert.Equal(t, "agent@example.com", claims.Email)

	other := NewHMACVerifier(&config.JWTConfig{Secret: "different"})
	_, err = other.Validate(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestHMACVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier(&config.JWTConfig{Secret: "s3cret"})

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	signed, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Validate(signed)
	assert.Error(t, err)

	wrongAlg := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "user-1"})
	signed, err = wrongAlg.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Validate(signed)
	assert.Error(t, err)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{})
	signed, err = anonymous.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChain(t *testing.T) {
	first := NewHMACVerifier(&config.JWTConfig{Secret: "one"})
	second := NewHMACVerifier(&config.JWTConfig{Secret: "two"})
	chain := NewChain(nil, first, second)
	require.Len(t, chain, 2)

	token, err := second.Issue("user-2", "")
	require.NoError(t, err)
	claims, err := chain.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Identity())

	_, err = chain.Validate("garbage")
	assert.Error(t, err)

	_, err = NewChain().Validate(token)
	assert.ErrorIs(t, err, ErrNoVerifier)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer  ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good/.well-known/openid-configuration":
			_, _ = w.Write([]byte(`{"issuer":"x","jwks_uri":"https://idp.test/keys"}`))
		case "/empty/.well-known/openid-configuration":
			_, _ = w.Write([]byte(`{"issuer":"x"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	got, err := DiscoverJWKSURL(ctx, srv.Client(), srv.URL+"/good/")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.test/keys", got)

	_, err = DiscoverJWKSURL(ctx, srv.Client(), srv.URL+"/empty")
	assert.ErrorContains(t, err, "jwks_uri not found")

	_, err = DiscoverJWKSURL(ctx, srv.Client(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestOIDCVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	kf, err := keyfunc.NewJWKSetJSON(jwks)
	require.NoError(t, err)
	v := NewOIDCVerifierWithKeys(kf, "https://idp.test/", "hometour")

	sign := func(claims Claims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = "test-key"
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    "https://idp.test",
		Subject:   "oidc-user",
		Audience:  jwt.ClaimStrings{"hometour"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	claims, err := v.Validate(sign(Claims{Name: "Jane", RegisteredClaims: valid}))
	require.NoError(t, err)
	assert.Equal(t, "oidc-user", claims.Identity())
	assert.Equal(t, "Jane", claims.Name)

	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}
	_, err = v.Validate(sign(Claims{RegisteredClaims: wrongAudience}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := valid
	noExpiry.ExpiresAt = nil
	_, err = v.Validate(sign(Claims{RegisteredClaims: noExpiry}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	// an HMAC token must not pass the JWKS check
	hmacToken, err := NewHMACVerifier(&config.JWTConfig{Secret: "s3cret"}).Issue("user-1", "")
	require.NoError(t, err)
	_, err = v.Validate(hmacToken)
	assert.Error(t, err)
}
