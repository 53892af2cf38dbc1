package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/config"
	"github.com/civicreport/civic-issue-api/databases"
	"github.com/civicreport/civic-issue-api/models"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenTTL is how long issued bearer tokens stay valid
const TokenTTL = 30 * 24 * time.Hour

// Identity is the authenticated caller attached to the request context
type Identity struct {
	ID    primitive.ObjectID
	Name  string
	Email string
	Phone string
	Role  string
}

// IsAdmin reports whether the identity holds the admin role
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Middleware resolves bearer credentials to identities. The user document is
// re-read on every request so role changes take effect immediately.
type Middleware struct {
	UDB    databases.UserDatabase
	Secret []byte
}

// NewMiddleware builds the auth middleware from the config secret
func NewMiddleware(conf *config.Config, udb databases.UserDatabase) Middleware {
	return Middleware{UDB: udb, Secret: []byte(conf.JWTSecret)}
}

// NewToken signs an HS256 bearer token for the given user
func NewToken(secret []byte, user models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.Hex(),
		"role": user.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Authenticate verifies the bearer token and loads the caller's identity
// into the request context. Missing or invalid credentials get a 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		identity, err := m.resolveIdentity(r)
		if err != nil {
			zap.S().Debugw("unauthorized", "url", r.URL, "error", err)
			config.ErrorStatus("not authorized", http.StatusUnauthorized, w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin rejects non-admin identities with a 403. It must run inside
// Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.IsAdmin() {
			config.ErrorStatus("admin access required", http.StatusForbidden, w, errors.New("forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) resolveIdentity(r *http.Request) (Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Identity{}, errors.New("no authorization token provided")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.Secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject claim: %w", err)
	}

	ctx, cancel := WithQueryTimeout(r.Context())
	defer cancel()

	user, err := m.UDB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to load user for token: %w", err)
	}

	return Identity{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
		Role:  user.Role,
	}, nil
}

// ContextWithIdentity attaches the identity to a context
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity stored by Authenticate
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
