package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"genserver/internal/domain"
	"genserver/internal/ratelimit"
)

func newTestGate() *ratelimit.Gate {
	return ratelimit.NewGate(ratelimit.NewMemoryStore(), zerolog.Nop())
}

func TestAdmissionDeniesOverLimit(t *testing.T) {
	handler := Admission(newTestGate(), "image", 2, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(last.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != string(domain.ErrorCodeAdmissionDenied) {
		t.Fatalf("error code = %q, want %q", body.Error.Code, domain.ErrorCodeAdmissionDenied)
	}
}

func TestAdmissionScalesLimitByTier(t *testing.T) {
	handler := Admission(newTestGate(), "image", 1, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	identity := domain.CallerIdentity{ID: "caller-pro", Tier: domain.TierPro}
	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
		req = req.WithContext(ContextWithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	// pro tier gets 5x the base limit: five admits, then a denial.
	for i := 0; i < 5; i++ {
		if codes[i] != http.StatusAccepted {
			t.Fatalf("request %d status = %d, want 202", i, codes[i])
		}
	}
	if codes[5] != http.StatusTooManyRequests {
		t.Fatalf("request 5 status = %d, want 429", codes[5])
	}
}

func TestAdmissionKeysCallersIndependently(t *testing.T) {
	handler := Admission(newTestGate(), "video", 1, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, id := range []string{"caller-a", "caller-b"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
		req = req.WithContext(ContextWithIdentity(req.Context(), domain.CallerIdentity{ID: id, Tier: domain.TierFree}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("caller %s status = %d, want 202", id, rec.Code)
		}
	}
}
