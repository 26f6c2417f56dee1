package jwtutil

import (
	"crypto/rsa"
	"errors"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrKeyNotConfigured = errors.New("jwt key not configured")

type Claims struct {
	UserID     string `json:"uid"`
	Role       string `json:"role"`
	BoutiqueID string `json:"bid,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role, boutiqueID string, expiry time.Duration) *Claims {
	now := time.Now().UTC()
	claims := &Claims{
		UserID:     userID,
		Role:       role,
		BoutiqueID: boutiqueID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return claims
}

func GenerateAccessToken(claims *Claims, privateKey *rsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(privateKey)
}

func ParseAccessToken(tokenStr string, publicKey *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// LoadPublicKey parses an inline PEM, falling back to reading path.
func LoadPublicKey(inlinePEM, path string) (*rsa.PublicKey, error) {
	raw, err := pemSource(inlinePEM, path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(raw)
}

func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := pemSource("", path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPrivateKeyFromPEM(raw)
}

func pemSource(inlinePEM, path string) ([]byte, error) {
	if pem := strings.TrimSpace(inlinePEM); pem != "" {
		return []byte(pem), nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrKeyNotConfigured
	}
	// #nosec G304 -- path is provided by operator configuration.
	return os.ReadFile(path)
}
