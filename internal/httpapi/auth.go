package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const authUserKey = "auth_user"

// IssueToken mints a signed bearer token for the given user. The bot
// frontend exchanges its Telegram identity for one of these.
func IssueToken(signingKey []byte, issuer string, userID string, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(signingKey)
}

// bearerMiddleware validates the Authorization header and stores the
// authenticated user id in the request context.
func bearerMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		rawToken, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(rawToken) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		parsed, err := jwt.ParseWithClaims(rawToken, &jwt.RegisteredClaims{},
			func(token *jwt.Token) (interface{}, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !parsed.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid bearer token"))
			return
		}
		registeredClaims, ok := parsed.Claims.(*jwt.RegisteredClaims)
		if !ok || registeredClaims.Subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "token missing subject"))
			return
		}
		ctx.Set(authUserKey, registeredClaims.Subject)
		ctx.Next()
	}
}

func authenticatedUser(ctx *gin.Context) string {
	value, ok := ctx.Get(authUserKey)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
