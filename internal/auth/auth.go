// Package auth issues and verifies the bearer tokens that guard the API.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const contextKey = "user"

var (
	// ErrMissingSecret is returned when tokens are requested without a signing secret.
	ErrMissingSecret = errors.New("jwt secret is required")
	// ErrMissingSubject is returned when tokens are requested for an empty subject.
	ErrMissingSubject = errors.New("token subject is required")
)

// GenerateToken signs an HS256 token for subject valid for expiresIn.
func GenerateToken(subject, secret string, expiresIn time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(expiresIn)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// JWTMiddleware validates bearer tokens from the Authorization header or the
// token query parameter. An empty secret disables authentication.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	if strings.TrimSpace(secret) == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echojwt.WithConfig(echojwt.Config{
		Skipper:     skipper,
		SigningKey:  []byte(secret),
		ContextKey:  contextKey,
		TokenLookup: "header:Authorization:Bearer ,query:token",
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
		},
	})
}

// SubjectFromContext returns the subject of the verified token, if any.
func SubjectFromContext(c echo.Context) (string, bool) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok || token == nil {
		return "", false
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
