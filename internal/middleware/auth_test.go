package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnlynk/internal/config"

	"github.com/gin-gonic/gin"
)

func signToken(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	h := base64.RawURLEncoding.EncodeToString(header)
	p := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func newAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.GetDefaultConfig()
	cfg.JWT.Secret = secret

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	r := newAuthRouter(secret)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token with user_id",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{"user_id": 7}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid token with numeric sub",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{"sub": 7}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not bearer",
			authHeader: "Basic abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong signature",
			authHeader: "Bearer " + signToken(t, "other-secret", map[string]interface{}{"user_id": 7}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed token",
			authHeader: "Bearer not.a.jwt",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{
				"user_id": 7, "exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "not yet valid",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{
				"user_id": 7, "nbf": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non-numeric identity",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{"sub": "alice"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no identity claim",
			authHeader: "Bearer " + signToken(t, secret, map[string]interface{}{"role": "advisor"}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, expected %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestValidateHS256JWT_TimeClaims(t *testing.T) {
	const secret = "s"
	now := time.Now()

	token := signToken(t, secret, map[string]interface{}{
		"user_id": 1,
		"iat":     now.Add(-time.Minute).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	claims, err := validateHS256JWT(token, secret, now)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims["user_id"] != float64(1) {
		t.Errorf("user_id = %v, expected 1", claims["user_id"])
	}

	future := signToken(t, secret, map[string]interface{}{
		"user_id": 1,
		"iat":     now.Add(time.Hour).Unix(),
	})
	if _, err := validateHS256JWT(future, secret, now); err == nil {
		t.Error("expected error for future iat")
	}
}
