package middleware

import (
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"mallify-hub/internal/api/response"
	jwtutil "mallify-hub/pkg/jwt"
)

const claimsContextKey = "claims"

type Claims = jwtutil.Claims

func JWTAuth(publicKey *rsa.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := GetClaims(c); ok && claims != nil {
			c.Next()
			return
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" || publicKey == nil {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseAccessToken(tokenString, publicKey)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Fail(c, 401, response.ErrTokenExpired, "token expired")
			} else {
				response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			}
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// OptionalJWTAuth attaches claims when a valid token is present and never rejects.
func OptionalJWTAuth(publicKey *rsa.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString != "" && publicKey != nil {
			if claims, err := jwtutil.ParseAccessToken(tokenString, publicKey); err == nil {
				c.Set(claimsContextKey, claims)
			}
		}
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(roles) == 0 {
			c.Next()
			return
		}

		claims, ok := GetClaims(c)
		if !ok {
			response.Fail(c, 401, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		for _, role := range roles {
			if strings.EqualFold(claims.Role, role) {
				c.Next()
				return
			}
		}

		response.Fail(c, 403, response.ErrForbidden, "forbidden")
		c.Abort()
	}
}

func GetClaims(c *gin.Context) (*Claims, bool) {
	val, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) >= 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if token := strings.TrimSpace(authHeader[7:]); token != "" {
			return token
		}
	}

	if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
		return cookieToken
	}
	// EventSource cannot set headers.
	return strings.TrimSpace(c.Query("access_token"))
}
