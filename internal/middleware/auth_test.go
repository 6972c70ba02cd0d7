package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/models"
)

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	handler := BearerAuth(auth.NewVerifier("secret"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_MalformedHeader(t *testing.T) {
	handler := BearerAuth(auth.NewVerifier("secret"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	handler := BearerAuth(auth.NewVerifier("secret"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_ValidTokenExposesIdentity(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	userID := uuid.New()
	token, err := verifier.Mint(auth.Identity{UserID: &userID, Tier: models.TierPro}, time.Minute)
	require.NoError(t, err)

	var seen *auth.Identity
	handler := BearerAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.NotNil(t, seen.UserID)
	assert.Equal(t, userID, *seen.UserID)
	assert.Equal(t, models.TierPro, seen.Tier)
}

func TestRequireUser_BlocksAnonymous(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	anonID := uuid.New()
	token, err := verifier.Mint(auth.Identity{AnonymousID: &anonID}, time.Minute)
	require.NoError(t, err)

	handler := BearerAuth(verifier)(RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireUser_AdmitsAccounts(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	userID := uuid.New()
	token, err := verifier.Mint(auth.Identity{UserID: &userID}, time.Minute)
	require.NoError(t, err)

	ran := false
	handler := BearerAuth(verifier)(RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		ran = true
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ran)
}
