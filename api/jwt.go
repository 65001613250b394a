// Package api provides HTTP handlers and routing for the dispatch engine's
// control surface: JWT issuance, the Producer/Consumer/Control/Introspection
// operations (spec §6), wired against an engine.Engine.
package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"dispatch.evalgo.org/security"
)

// JWTHandlers issues and validates the bearer tokens gating every
// protected route SetupRoutes registers.
type JWTHandlers struct {
	JWT *security.JWTService
}

// TokenRequest requests a token for userID, optionally carrying the scopes
// the issued token should grant (spec §6 Control API authorization).
type TokenRequest struct {
	UserID string   `json:"user_id" validate:"required"`
	Scopes []string `json:"scopes,omitempty"`
}

// TokenResponse carries the issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken issues a 24-hour bearer token for userID.
//
// Endpoint: POST /auth/token
func (h *JWTHandlers) GenerateToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	var token string
	var err error
	if len(req.Scopes) > 0 {
		token, err = h.JWT.GenerateTokenWithClaims(req.UserID, 24*time.Hour, map[string]interface{}{
			"scope": req.Scopes,
		})
	} else {
		token, err = h.JWT.GenerateToken(req.UserID, 24*time.Hour)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate token"})
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// jwtMiddleware validates the bearer token with echojwt, then a second
// pass (claimsToContext) unpacks the parsed claims into the AuthUser shape
// authorization.go's RequireScope/RequireAllScopes expect.
func jwtMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// claimsToContext runs after jwtMiddleware: it reads the token echojwt
// stashed under the default "user" context key and republishes its claims
// through SetClaims/SetUser so downstream scope checks work uniformly
// regardless of which middleware authenticated the request.
func claimsToContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok || token == nil {
			return next(c)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return next(c)
		}

		generic := make(map[string]interface{}, len(claims))
		for k, v := range claims {
			generic[k] = v
		}
		SetClaims(c, generic)

		user := &AuthUser{Claims: generic}
		if sub, ok := claims["sub"].(string); ok {
			user.ID = sub
		}
		user.Scopes = extractScopesFromClaims(generic)
		SetUser(c, user)

		return next(c)
	}
}
