package gateway

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// isAdminToken reports whether tokenStr is a validly-signed JWT carrying
// user_type=admin, mirroring the teacher gateway's own admin check.
func isAdminToken(tokenStr, secret string) bool {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	userType, _ := claims["user_type"].(string)
	return userType == "admin"
}

// requireAdmin gates mutating control-plane routes (tick advance,
// transaction submission, checkpoint export) behind an admin-claimed JWT
// passed as a Bearer token.
func requireAdmin(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		if !isAdminToken(tokenStr, secret) {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
