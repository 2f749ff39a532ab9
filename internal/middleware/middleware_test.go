package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func okHandler(got *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			*got = GetUserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestJWTAuth_Middleware(t *testing.T) {
	userID := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name     string
		auth     *JWTAuth
		header   string
		wantCode int
		wantErr  string
	}{
		{
			name:     "sub claim",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "exp": exp}),
			wantCode: http.StatusOK,
		},
		{
			name:     "user_id fallback",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": userID.String(), "exp": exp}),
			wantCode: http.StatusOK,
		},
		{
			name:     "audience match",
			auth:     NewJWTAuth(testSecret, "authenticated"),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "aud": "authenticated", "exp": exp}),
			wantCode: http.StatusOK,
		},
		{
			name:     "audience mismatch",
			auth:     NewJWTAuth(testSecret, "authenticated"),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "aud": "anon", "exp": exp}),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "missing header",
			auth:     NewJWTAuth(testSecret, ""),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "wrong scheme",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Basic abc",
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "wrong secret",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": userID.String(), "exp": exp}),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "HS512 rejected",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "exp": exp}),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name:     "expired",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "exp": time.Now().Add(-time.Minute).Unix()}),
			wantCode: http.StatusUnauthorized,
			wantErr:  "TOKEN_EXPIRED",
		},
		{
			name:     "non-uuid subject",
			auth:     NewJWTAuth(testSecret, ""),
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice", "exp": exp}),
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got uuid.UUID
			req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			tc.auth.Middleware(okHandler(&got)).ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantErr != "" {
				if code := errorCode(t, rr); code != tc.wantErr {
					t.Errorf("expected error code %s, got %s", tc.wantErr, code)
				}
				return
			}
			if got != userID {
				t.Errorf("expected user %s on context, got %s", userID, got)
			}
		})
	}
}

func TestAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-admin"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		hash     string
		key      string
		wantCode int
	}{
		{"correct key", string(hash), "s3cret-admin", http.StatusOK},
		{"wrong key", string(hash), "guess", http.StatusUnauthorized},
		{"missing key", string(hash), "", http.StatusUnauthorized},
		{"admin disabled", "", "s3cret-admin", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/overview", nil)
			if tc.key != "" {
				req.Header.Set("X-Admin-Key", tc.key)
			}
			rr := httptest.NewRecorder()

			AdminKey(tc.hash)(okHandler(nil)).ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Errorf("expected %d, got %d", tc.wantCode, rr.Code)
			}
		})
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 2, time.Minute)
	h := rl.Middleware(okHandler(nil))

	send := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/chats/x/message", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < 2; i++ {
		if code := send(alice); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send(alice); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after limit, got %d", code)
	}
	if code := send(bob); code != http.StatusOK {
		t.Errorf("other users must not share the budget, got %d", code)
	}
}

func TestRateLimiter_SteadyClientUnderRateIsNeverBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 3, time.Minute)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		if ok, _ := rl.allowAt("user:steady", now); !ok {
			t.Fatalf("request %d blocked for a client sending one request per 59s", i+1)
		}
		now = now.Add(59 * time.Second)
	}
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 3, time.Minute)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if ok, _ := rl.allowAt("user:burst", now); !ok {
			t.Fatalf("request %d inside the burst was blocked", i+1)
		}
	}

	ok, retryAfter := rl.allowAt("user:burst", now)
	if ok {
		t.Fatal("expected the fourth request in the same instant to be blocked")
	}
	if retryAfter <= 0 || retryAfter > 20*time.Second {
		t.Errorf("expected a retry delay within one refill interval, got %s", retryAfter)
	}

	if ok, _ := rl.allowAt("user:burst", now.Add(20*time.Second)); !ok {
		t.Error("expected a token to be available after one refill interval")
	}
}

func TestRateLimiter_SetsRetryAfter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRateLimiter(ctx, 1, time.Minute).Middleware(okHandler(nil))
	userID := uuid.New()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/chats/x/message", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Errorf("expected Retry-After 60, got %q", got)
	}
}
