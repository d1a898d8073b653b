// Package auth verifies owner identity for the back-office endpoints.
// Tokens are HS256 JWTs whose subject is the owner and whose shop_ids claim
// lists the shops that owner may act on.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ownerKey = "owner"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	ShopIDs []uuid.UUID `json:"shop_ids"`
	jwt.RegisteredClaims
}

// Owns reports whether the owner may act on shopID
func (c *Claims) Owns(shopID uuid.UUID) bool {
	return slices.Contains(c.ShopIDs, shopID)
}

type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Sign issues an owner token; cmd/ownertoken is the operator entry point.
func (a *Authenticator) Sign(subject string, shopIDs []uuid.UUID, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		ShopIDs: shopIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign owner token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// Middleware rejects requests without a valid bearer token and stores the claims on the context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ownerKey, claims)
		c.Next()
	}
}

// RequireShop allows the request only when the owner holds the shop named by the route param.
// It must run after Middleware.
func RequireShop(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := OwnerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		shopID, err := uuid.Parse(c.Param(param))
		if err != nil || !claims.Owns(shopID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func OwnerFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
