// Package auth issues and verifies guest identity tokens.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptyName    = errors.New("display name is required")
)

const issuer = "meme-arena"

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Auth struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// New builds an issuer/verifier. An empty secret gets a random per-process key,
// so tokens do not survive a restart.
func New(secret string, ttl time.Duration) (*Auth, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{key: key, ttl: ttl, now: time.Now}, nil
}

func (a *Auth) Issue(name string) (string, User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", User{}, ErrEmptyName
	}
	u := User{ID: uuid.NewString(), Name: name}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"name": u.Name,
		"iss":  issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(a.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", User{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, u, nil
}

func (a *Auth) ParseToken(tok string) (User, error) {
	if tok == "" {
		return User{}, ErrMissingToken
	}
	t, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !t.Valid {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return User{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return User{ID: sub, Name: name}, nil
}

type ctxKey struct{}

// Middleware attaches the caller's identity when a valid token is present.
// Requests without one pass through anonymously; admission decides what that means.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tok string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok = strings.TrimPrefix(h, "Bearer ")
		} else {
			tok = r.URL.Query().Get("token")
		}
		if u, err := a.ParseToken(tok); err == nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, &u)
}

// UserFrom returns nil for anonymous requests.
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}
