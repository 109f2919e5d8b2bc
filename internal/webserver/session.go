package webserver

import (
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	SessionContextKey = "session"
	SessionTTL        = 24 * time.Hour
)

// SessionClaims HS256 session token, the subject is the manufacturer id
type SessionClaims struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// SessionMiddleware parses an optional bearer token. Requests without a
// valid token continue as anonymous.
func SessionMiddleware(secret string) echo.MiddlewareFunc {
	if secret == "" {
		zap.L().Warn("web secret is empty, sessions are disabled", zap.String("namespace", "api"))
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		ContextKey: SessionContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(SessionClaims)
		},
		ContinueOnIgnoredError: true,
		ErrorHandler: func(c echo.Context, err error) error {
			return nil
		},
	})
}

// IssueToken signs a session token for the manufacturer
func IssueToken(secret string, m *domain.Manufacturer, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := SessionClaims{
		Username: m.Username,
		Name:     common.IfEmptyStr(m.CompanyName, m.Username),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cast.ToString(m.ID),
			Issuer:    "pharmaauth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// CurrentActor the caller of this request, anonymous when no session is present
func CurrentActor(c echo.Context) domain.Actor {
	token, ok := c.Get(SessionContextKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return domain.Actor{}
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return domain.Actor{}
	}
	id, err := cast.ToInt64E(claims.Subject)
	if err != nil || id == 0 {
		return domain.Actor{}
	}
	return domain.Actor{UserID: id, Name: claims.Name}
}
