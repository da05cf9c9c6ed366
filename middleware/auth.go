package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/model"
	qamodel "github.com/qaforge/convotest/qa/model"
)

// ParseToken verifies an HS256 bearer token and returns its subject.
func ParseToken(raw string) (string, error) {
	if config.JWTSecret == "" {
		return "", errors.New("JWT_SECRET is not configured")
	}

	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(config.JWTSecret), nil
	})
	if err != nil {
		return "", errors.Wrap(err, "parse token")
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if config.JWTIssuer != "" && !claims.VerifyIssuer(config.JWTIssuer, true) {
		return "", errors.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// SignToken issues an HS256 token for subject. Used by tooling and tests.
func SignToken(subject string, ttl time.Duration) (string, error) {
	if config.JWTSecret == "" {
		return "", errors.New("JWT_SECRET is not configured")
	}
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   subject,
		Issuer:    config.JWTIssuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.JWTSecret))
	return signed, errors.Wrap(err, "sign token")
}

// JWTAuth authenticates the caller and resolves their profile. A valid
// token without a profile is a 404, matching the run-level error contract.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if raw == "" || raw == header {
			AbortWithError(c, http.StatusUnauthorized, errors.Wrap(qamodel.ErrAuth, "missing bearer token"))
			return
		}

		subject, err := ParseToken(raw)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, errors.Wrap(qamodel.ErrAuth, err.Error()))
			return
		}

		profile, err := model.GetProfileBySubject(gmw.Ctx(c), subject)
		if err != nil {
			AbortWithMappedError(c, errors.Wrap(err, "User profile not found"))
			return
		}

		c.Set(ctxkey.Id, subject)
		c.Set(ctxkey.ProfileId, profile.Id)
		c.Set(ctxkey.OrgId, profile.OrgId)
		gmw.SetLogger(c, logger.FromContext(c).With(zap.String("profile_id", profile.Id)))
		c.Next()
	}
}
