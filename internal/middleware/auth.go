package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
	"github.com/noah-isme/pulse-metrics-api/pkg/response"
)

// Context keys populated by JWTAuth.
const (
	ContextOrganizationID = "organization_id"
	ContextUserID         = "user_id"
)

type platformClaims struct {
	OrganizationID string `json:"organization_id"`
	jwt.RegisteredClaims
}

// JWTAuth verifies the platform bearer token and stores the caller's
// organization in the request context. Every analytics read is tenant scoped;
// a token without an org claim is rejected.
func JWTAuth(secret string) gin.HandlerFunc {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token"))
			c.Abort()
			return
		}

		claims := &platformClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token"))
			c.Abort()
			return
		}
		if claims.OrganizationID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token is not organization scoped"))
			c.Abort()
			return
		}

		c.Set(ContextOrganizationID, claims.OrganizationID)
		if claims.Subject != "" {
			c.Set(ContextUserID, claims.Subject)
		}
		c.Next()
	}
}

// OpsToken guards operational endpoints with a shared token checked against a
// bcrypt hash. An empty hash disables the endpoint entirely.
func OpsToken(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "operational endpoints are disabled"))
			c.Abort()
			return
		}
		token := c.GetHeader("X-Ops-Token")
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing ops token"))
			c.Abort()
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid ops token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
