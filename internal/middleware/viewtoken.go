package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jengzang/memorymap-backend-go/pkg/response"
)

// ViewTokenHeader carries the view token when no Authorization header is set
const ViewTokenHeader = "X-View-Token"

// ErrInvalidViewToken is returned for tokens that fail verification
var ErrInvalidViewToken = errors.New("invalid view token")

// ViewTokens issues and verifies the tokens that bind a client to its view
type ViewTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewViewTokens creates a token issuer. A non-positive ttl means 24 hours.
func NewViewTokens(secret string, ttl time.Duration) *ViewTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ViewTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for viewID
func (t *ViewTokens) Issue(viewID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   viewID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign view token: %w", err)
	}
	return signed, exp, nil
}

// Verify returns the view id a token was issued for
func (t *ViewTokens) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidViewToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidViewToken
	}
	return claims.Subject, nil
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.GetHeader(ViewTokenHeader)
}

// RequireViewToken rejects requests whose token was not issued for the view
// named by the :param path parameter
func RequireViewToken(tokens *ViewTokens, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "Missing view token")
			return
		}
		viewID, err := tokens.Verify(token)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired view token")
			return
		}
		if viewID != c.Param(param) {
			response.Error(c, http.StatusForbidden, "View token does not match view")
			return
		}
		c.Next()
	}
}
