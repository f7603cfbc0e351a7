package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/mapleleafu/typearena/typearena-backend/utils"
)

type contextKey string

const authInfoKey contextKey = "authInfo"

// ValidateToken parses an HS256 token minted by the auth service.
func ValidateToken(tokenStr, secret string) (*models.CustomClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not set")
	}

	claims := &models.CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("token has no player id")
	}
	return claims, nil
}

func JWTValidationMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

			claims, err := ValidateToken(tokenStr, secret)
			if err != nil {
				utils.HandleError(w, responses.UnauthorizedError{Msg: "Your token is invalid or expired. Please log in again."})
				return
			}

			ctx := context.WithValue(r.Context(), authInfoKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by JWTValidationMiddleware.
func ClaimsFromContext(ctx context.Context) (*models.CustomClaims, bool) {
	claims, ok := ctx.Value(authInfoKey).(*models.CustomClaims)
	return claims, ok
}
