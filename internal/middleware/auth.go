package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"genserver/internal/domain"
)

type TokenClaims struct {
	Sub      string `json:"sub"`
	Tier     string `json:"tier"`
	Locale   string `json:"locale"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
}

type callerKey string

const (
	callerIDKey callerKey = "caller_id"
	identityKey callerKey = "caller_identity"
)

func SignJWT(secret string, claims TokenClaims) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	payloadJSON, _ := json.Marshal(claims)
	headerEnc := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadEnc := base64.RawURLEncoding.EncodeToString(payloadJSON)
	data := headerEnc + "." + payloadEnc
	sig := hmacSign(secret, data)
	return data + "." + sig, nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyJWT(secret, token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token")
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errors.New("invalid signature")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return nil, errors.New("token expired")
	}
	return &claims, nil
}

// HashAPIKey derives the stored lookup hash for a raw API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Auth authenticates the request either by API key (X-API-Key, resolved
// through the key repository) or by a signed bearer token, and stores the
// resulting caller identity in the request context.
func Auth(secret string, keys domain.KeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := strings.TrimSpace(r.Header.Get("X-API-Key")); raw != "" {
				if keys == nil {
					http.Error(w, "api keys not supported", http.StatusUnauthorized)
					return
				}
				identity, err := keys.Resolve(r.Context(), HashAPIKey(raw))
				if err != nil || identity == nil {
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), *identity)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization", http.StatusUnauthorized)
				return
			}
			claims, err := VerifyJWT(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			identity := domain.CallerIdentity{ID: claims.Sub, Tier: domain.QuotaTier(claims.Tier)}
			if !identity.Tier.IsValid() {
				identity.Tier = domain.TierFree
			}
			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, LocaleKey, claims.Locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithIdentity stores the caller identity and its ID in the context.
func ContextWithIdentity(ctx context.Context, identity domain.CallerIdentity) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	return context.WithValue(ctx, callerIDKey, identity.ID)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (domain.CallerIdentity, bool) {
	v, ok := ctx.Value(identityKey).(domain.CallerIdentity)
	return v, ok
}

func CallerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithCallerID(ctx context.Context, callerID string) context.Context {
	if strings.TrimSpace(callerID) == "" {
		return ctx
	}
	return context.WithValue(ctx, callerIDKey, callerID)
}
