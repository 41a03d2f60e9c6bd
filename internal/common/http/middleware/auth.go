package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "judgegate/pkg/errors"
	"judgegate/pkg/utils/contextkey"
	"judgegate/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	principalContextKey = "principal"

	// RoleAdmin marks a platform system administrator.
	RoleAdmin = "admin"
)

// Principal is the authenticated caller extracted from an access token.
type Principal struct {
	IdentityID int64
	UserID     *int64
	Username   string
	Role       string
}

// IsSysadmin reports whether the caller holds the system administrator role.
func (p Principal) IsSysadmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

type identityClaims struct {
	IdentityID int64  `json:"identity_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	TokenType  string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 access tokens issued by the user service.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier; issuer may be empty to skip the check.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses raw and returns the principal it carries.
func (v *TokenVerifier) Verify(raw string) (Principal, error) {
	if raw == "" || len(v.secret) == 0 {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &identityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || !parsed.Valid {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" || claims.IdentityID <= 0 {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return Principal{
		IdentityID: claims.IdentityID,
		UserID:     claims.UserID,
		Username:   claims.Username,
		Role:       claims.Role,
	}, nil
}

// AuthMiddleware rejects requests without a valid bearer token and stores the principal.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("auth verifier unavailable"))
			return
		}
		principal, err := verifier.Verify(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(principalContextKey, principal)
		ctx := context.WithValue(c.Request.Context(), contextkey.IdentityID, principal.IdentityID)
		if principal.UserID != nil {
			ctx = context.WithValue(ctx, contextkey.UserID, *principal.UserID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PrincipalFromContext returns the principal stored by AuthMiddleware.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
