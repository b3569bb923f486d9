package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"genserver/internal/domain"
)

type staticKeyRepo struct {
	hash     string
	identity domain.CallerIdentity
}

func (r *staticKeyRepo) Resolve(_ context.Context, keyHash string) (*domain.CallerIdentity, error) {
	if keyHash != r.hash {
		return nil, domain.ErrUnauthorized
	}
	identity := r.identity
	return &identity, nil
}

func TestAuthAPIKey(t *testing.T) {
	repo := &staticKeyRepo{
		hash:     HashAPIKey("gs_live_abc123"),
		identity: domain.CallerIdentity{ID: "caller-1", Tier: domain.TierPro},
	}

	var got domain.CallerIdentity
	handler := Auth("secret", repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "gs_live_abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.ID != "caller-1" || got.Tier != domain.TierPro {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

func TestAuthAPIKeyRejected(t *testing.T) {
	repo := &staticKeyRepo{hash: HashAPIKey("gs_live_abc123")}
	handler := Auth("secret", repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthBearerToken(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{
		Sub:  "caller-2",
		Tier: "free",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	var got domain.CallerIdentity
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.ID != "caller-2" || got.Tier != domain.TierFree {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

func TestAuthBearerUnknownTierDefaultsFree(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "caller-3", Tier: "platinum"})

	var got domain.CallerIdentity
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.Tier != domain.TierFree {
		t.Fatalf("tier = %q, want free", got.Tier)
	}
}

func TestAuthMissingCredentials(t *testing.T) {
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestVerifyJWTExpired(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "caller", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", token); err == nil {
		t.Fatal("expected expired token error")
	}
}

func TestVerifyJWTWrongSecret(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "caller"})
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatal("expected signature error")
	}
}
