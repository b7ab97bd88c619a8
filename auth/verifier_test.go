package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims tokenClaims) string {
	t.Helper()

	headerJSON, err := utils.Marshal(tokenHeader{Alg: "HS256", Typ: "JWT"})
	require.NoError(t, err)
	claimsJSON, err := utils.Marshal(claims)
	require.NoError(t, err)

	signing := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))

	return signing + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestLocalVerifier_ValidToken(t *testing.T) {
	v := NewLocalVerifier(logger.NewNop(), testSecret)

	token := signToken(t, testSecret, tokenClaims{
		Subject: "user-1",
		Email:   "alice@example.com",
		Name:    "Alice",
		Expires: time.Now().Add(time.Hour).Unix(),
	})

	identity, ok := v.Verify(token)
	require.True(t, ok)
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.Name)
}

func TestLocalVerifier_Rejections(t *testing.T) {
	v := NewLocalVerifier(logger.NewNop(), testSecret)

	valid := tokenClaims{Subject: "user-1", Expires: time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"wrong secret", signToken(t, "other-secret", valid)},
		{"expired", signToken(t, testSecret, tokenClaims{Subject: "user-1", Expires: time.Now().Add(-time.Hour).Unix()})},
		{"missing subject", signToken(t, testSecret, tokenClaims{Expires: time.Now().Add(time.Hour).Unix()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, ok := v.Verify(tt.token)
			assert.False(t, ok)
			assert.Nil(t, identity)
		})
	}
}

func TestLocalVerifier_RejectsUnsignedAlgorithm(t *testing.T) {
	v := NewLocalVerifier(logger.NewNop(), testSecret)

	headerJSON, err := utils.Marshal(tokenHeader{Alg: "none"})
	require.NoError(t, err)
	claimsJSON, err := utils.Marshal(tokenClaims{Subject: "user-1"})
	require.NoError(t, err)

	token := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON) + "."

	_, ok := v.Verify(token)
	assert.False(t, ok)
}

func TestLocalVerifier_NoExpiryClaimAccepted(t *testing.T) {
	v := NewLocalVerifier(logger.NewNop(), testSecret)

	token := signToken(t, testSecret, tokenClaims{Subject: "user-1"})

	_, ok := v.Verify(token)
	assert.True(t, ok)
}

func TestRemoteVerifier_Resolves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-9","email":"bob@example.com"}`))
	}))
	defer srv.Close()

	v := NewRemoteVerifier(logger.NewNop(), &types.AuthConfig{VerifyURL: srv.URL})

	identity, ok := v.Verify("opaque-token")
	require.True(t, ok)
	assert.Equal(t, "user-9", identity.ID)
}

func TestRemoteVerifier_RejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewRemoteVerifier(logger.NewNop(), &types.AuthConfig{VerifyURL: srv.URL})

	_, ok := v.Verify("bad-token")
	assert.False(t, ok)
}

func TestRemoteVerifier_UnreachableYieldsAbsent(t *testing.T) {
	v := NewRemoteVerifier(logger.NewNop(), &types.AuthConfig{
		VerifyURL: "http://127.0.0.1:1/verify",
		Timeout:   time.Second,
	})

	_, ok := v.Verify("any-token")
	assert.False(t, ok)
}

func TestNewVerifier_Factory(t *testing.T) {
	_, err := NewVerifier(logger.NewNop(), &types.AuthConfig{Type: "local", Secret: "s"})
	require.NoError(t, err)

	_, err = NewVerifier(logger.NewNop(), &types.AuthConfig{Type: "local"})
	assert.Error(t, err)

	_, err = NewVerifier(logger.NewNop(), &types.AuthConfig{Type: "remote", VerifyURL: "http://localhost/verify"})
	require.NoError(t, err)

	_, err = NewVerifier(logger.NewNop(), &types.AuthConfig{Type: "saml"})
	assert.ErrorIs(t, err, types.ErrVerifierTypeUnknown)
}
