package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"judgegate/internal/common/http/middleware"
	pkgerrors "judgegate/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTokenVerifier(t *testing.T) {
	verifier := middleware.NewTokenVerifier(testSecret, "judgegate")
	now := time.Now()

	tests := []struct {
		name     string
		claims   jwt.MapClaims
		wantCode pkgerrors.ErrorCode
	}{
		{
			name: "valid access token",
			claims: jwt.MapClaims{
				"identity_id": 7, "user_id": 3, "username": "alice", "role": "admin",
				"typ": "access", "iss": "judgegate", "exp": now.Add(time.Hour).Unix(),
			},
			wantCode: pkgerrors.Success,
		},
		{
			name: "expired",
			claims: jwt.MapClaims{
				"identity_id": 7, "typ": "access", "iss": "judgegate", "exp": now.Add(-time.Hour).Unix(),
			},
			wantCode: pkgerrors.TokenExpired,
		},
		{
			name: "refresh token rejected",
			claims: jwt.MapClaims{
				"identity_id": 7, "typ": "refresh", "iss": "judgegate", "exp": now.Add(time.Hour).Unix(),
			},
			wantCode: pkgerrors.TokenInvalid,
		},
		{
			name: "wrong issuer",
			claims: jwt.MapClaims{
				"identity_id": 7, "typ": "access", "iss": "other", "exp": now.Add(time.Hour).Unix(),
			},
			wantCode: pkgerrors.TokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := verifier.Verify(signToken(t, tt.claims))
			if got := pkgerrors.GetCode(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err=%v)", got, tt.wantCode, err)
			}
			if tt.wantCode == pkgerrors.Success {
				if principal.IdentityID != 7 || principal.Username != "alice" || !principal.IsSysadmin() {
					t.Errorf("unexpected principal %+v", principal)
				}
				if principal.UserID == nil || *principal.UserID != 3 {
					t.Errorf("user id not decoded: %+v", principal.UserID)
				}
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := middleware.NewTokenVerifier(testSecret, "")

	router := gin.New()
	router.Use(middleware.TraceContextMiddleware(), middleware.AuthMiddleware(verifier))
	router.GET("/whoami", func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, p.Username)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get("X-Trace-Id") == "" {
			t.Error("trace id header not set")
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"identity_id": 9, "username": "bob", "typ": "access", "exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
			t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
		}
	})
}
