package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/ctxkey"
	"github.com/playletworks/drama-api/model"
)

// sessionClaims is the payload of login-issued session tokens.
type sessionClaims struct {
	Email string `json:"email"`
	Tier  string `json:"tier"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs a session token for the tenant, valid for the
// configured TTL.
func IssueSessionToken(tenant *model.Tenant) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email: tenant.Email,
		Tier:  tenant.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(tenant.Id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AuthTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.SessionSecret))
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}
	return signed, nil
}

func parseSessionToken(raw string) (*model.Tenant, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(config.SessionSecret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse session token")
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "session token subject is not a tenant id")
	}
	return model.GetTenantById(id)
}

// TenantAuth authenticates every request from the bearer token: API keys
// (sk- prefix) resolve through the tenant cache, anything else is treated as
// a login-issued session token. The resolved identity lands in the gin
// context; no capability beyond identity is derived from the token.
func TenantAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.Request.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if token == "" {
			abortUnauthorized(c, "missing access token")
			return
		}

		var tenant *model.Tenant
		var err error
		if strings.HasPrefix(token, "sk-") {
			tenant, err = model.CacheGetTenantByAPIKey(strings.TrimPrefix(token, "sk-"))
		} else {
			tenant, err = parseSessionToken(token)
		}
		if err != nil {
			abortUnauthorized(c, "invalid access token")
			return
		}
		if tenant.Status != model.TenantStatusEnabled {
			abortUnauthorized(c, "tenant is disabled")
			return
		}

		c.Set(ctxkey.Id, tenant.Id)
		c.Set(ctxkey.Email, tenant.Email)
		c.Set(ctxkey.Tier, tenant.Tier)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
	c.Abort()
}
