package auth

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// expiryFromToken はJWT形式のトークンからexpクレームを取り出す。
// 署名は検証しない（検証はAPIサーバーの責務）。
func expiryFromToken(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
