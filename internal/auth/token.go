package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload the service understands. Role may come as a
// plain claim or, for Keycloak tokens, through realm_access.roles.
type Claims struct {
	Role        string `json:"role,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"realm_access,omitempty"`
	jwt.RegisteredClaims
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ParseIdentity verifies an HS256 token and returns the caller it names.
func ParseIdentity(tokenString string, secret []byte) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, errors.New("empty token")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	return identityFromClaims(claims.Subject, &claims)
}

// identityFromClaims maps a verified subject and its role claims to an
// identity. A token without an admin role is an ordinary user.
func identityFromClaims(subject string, claims *Claims) (models.Identity, error) {
	if subject == "" {
		return models.Identity{}, errors.New("subject claim not found in token")
	}

	role := models.RoleUser
	if claims.Role == models.RoleAdmin || slices.Contains(claims.RealmAccess.Roles, models.RoleAdmin) {
		role = models.RoleAdmin
	}
	return models.Identity{UserID: subject, Role: role}, nil
}

// IssueToken signs a token for identity. It backs local tooling and tests;
// production tokens come from the identity provider.
func IssueToken(identity models.Identity, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
