package routing

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware guards operations declaring bearerAuth security (the
// internal cross-linking endpoints). With no BIBREF_JWT_SECRET configured
// the check is disabled.
func AuthMiddleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		isAuthorizationRequired := false
		for _, opScheme := range ctx.Operation().Security {
			if _, ok := opScheme["bearerAuth"]; ok {
				isAuthorizationRequired = true
				break
			}
		}

		if !isAuthorizationRequired {
			next(ctx)
			return
		}

		secret := os.Getenv("BIBREF_JWT_SECRET")
		if secret == "" {
			next(ctx)
			return
		}

		tokenString := strings.TrimPrefix(ctx.Header("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = ctx.Query("jwt")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token", err)
			return
		}

		next(ctx)
	}
}
